package uploads

import (
	"bytes"
	"io"
)

// FileUpload is one file received from the boundary layer. Open may be called more than once.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func BytesUpload(fileName, contentType string, data []byte) FileUpload {
	return FileUpload{
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
