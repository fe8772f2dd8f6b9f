package officialaccount

import (
	"context"
	"fmt"
	"io"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVoice MediaType = "voice"
	MediaTypeVideo MediaType = "video"
	MediaTypeThumb MediaType = "thumb"
)

// UploadMediaResponse 新增临时素材响应
type UploadMediaResponse struct {
	Type      string `json:"type"`
	MediaID   string `json:"media_id"`
	ThumbID   string `json:"thumb_media_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// UploadMedia 新增临时素材
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/Asset_Management/New_temporary_materials.html
func (c *Client) UploadMedia(ctx context.Context, mediaType MediaType, fileName string, file io.Reader) (*UploadMediaResponse, error) {
	if file == nil || fileName == "" {
		return nil, fmt.Errorf("file and file name are required")
	}

	resp, err := Request[UploadMediaResponse](c).
		Path("/cgi-bin/media/upload").
		Query("type", string(mediaType)).
		UploadFile("media", fileName, file).
		Post(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Media 临时素材内容
type Media struct {
	ContentType string
	Data        []byte
}

// GetMedia 获取临时素材；视频素材返回的是包含 video_url 的 JSON
func (c *Client) GetMedia(ctx context.Context, mediaID string) (*Media, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("media_id is required")
	}

	resp, err := c.kit.API.Request().Path("/cgi-bin/media/get").Query("media_id", mediaID).Get(ctx)
	if err != nil {
		return nil, err
	}
	return &Media{ContentType: resp.Header.Get("Content-Type"), Data: resp.Body}, nil
}
