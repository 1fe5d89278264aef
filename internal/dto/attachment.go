package dto

// NamedPayload is one attachment upload.
type NamedPayload struct {
	Filename string
	Data     []byte
}

// AttachmentList reports attachment file names.
type AttachmentList struct {
	Total     int      `json:"total"`
	Filenames []string `json:"data"`
}
