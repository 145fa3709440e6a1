package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type uploadedFile struct {
	fileName string
	data     []byte
}

// readUpload 解析 multipart 表单并把 file 字段完整读入内存，出错时返回应答状态码。
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadedFile, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemoryBudget)

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds size limit (%dMB)", maxBytes/(1024*1024))
		}
		return nil, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("file field is required")
	}
	defer file.Close()

	if header.Size > maxBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds size limit (%dMB)", maxBytes/(1024*1024))
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("read uploaded file: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds size limit (%dMB)", maxBytes/(1024*1024))
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, errors.New("file must not be empty")
	}

	return &uploadedFile{fileName: header.Filename, data: data}, 0, nil
}
