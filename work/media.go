package work

import (
	"context"
	"fmt"
	"io"
)

type UploadMediaResponse struct {
	Type      string `json:"type"`
	MediaID   string `json:"media_id"`
	CreatedAt string `json:"created_at"`
}

// UploadMedia 上传临时素材，mediaType 为 image、voice、video 或 file
func (c *Client) UploadMedia(ctx context.Context, mediaType, fileName string, file io.Reader) (*UploadMediaResponse, error) {
	if mediaType == "" || fileName == "" || file == nil {
		return nil, fmt.Errorf("media type, file name and file are required")
	}
	resp, err := Request[UploadMediaResponse](c).
		Path("/cgi-bin/media/upload").
		Query("type", mediaType).
		UploadFile("media", fileName, file).
		Post(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMedia 获取临时素材原始内容
func (c *Client) GetMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("media_id is required")
	}
	resp, err := c.kit.API.Request().Path("/cgi-bin/media/get").Query("media_id", mediaID).Get(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
