package ingest

type urlRequest struct {
	SourceURL string `json:"sourceUrl"`
}

type statusRequest struct {
	FileID       string  `json:"fileId"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
}
