package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResultFile 描述转换结果中的单页图片，Url 与 FileData 至少有一个非空。
type ResultFile struct {
	FileName string `json:"FileName"`
	URL      string `json:"Url"`
	FileData string `json:"FileData"`
}

type convertResponse struct {
	Files []ResultFile `json:"Files"`
}

type errorResponse struct {
	Message string `json:"Message"`
}

// Client 调用远程转换服务，把办公文档转换为逐页 JPG。
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient 创建转换客户端；httpClient 为空时使用带超时的默认客户端。
func NewClient(baseURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    httpClient,
	}
}

// Configured 表示客户端具备调用条件。
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.secret != ""
}

// Convert 上传源文档并返回按页序排列的结果描述。
func (c *Client) Convert(ctx context.Context, sourceExt, fileName string, data []byte) ([]ResultFile, error) {
	if !c.Configured() {
		return nil, errors.New("conversion service not configured")
	}
	sourceExt = strings.TrimPrefix(strings.ToLower(sourceExt), ".")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("File", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/convert/%s/to/jpg?Secret=%s",
		c.baseURL, url.PathEscape(sourceExt), url.QueryEscape(c.secret))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call conversion service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read conversion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			msg = er.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	var out convertResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode conversion response: %w", err)
	}
	return out.Files, nil
}

// Fetch 取得单个结果文件的字节：优先下载 URL，否则解码内联的 base64 数据。
func (c *Client) Fetch(ctx context.Context, f ResultFile) ([]byte, error) {
	if f.URL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", f.FileName, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Message: "download " + f.FileName}
		}
		return io.ReadAll(resp.Body)
	}

	if f.FileData != "" {
		data, err := base64.StdEncoding.DecodeString(f.FileData)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.FileName, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("result file %q has neither url nor data", f.FileName)
}
