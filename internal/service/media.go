package service

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/config"
	"github.com/rahulrsolguruz/chat-app-api/internal/models"
)

// 媒体上传相关错误。
var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrMediaTooLarge    = errors.New("media too large")
)

// MediaService 负责媒体文件的落盘；内容类型按字节嗅探，不信任扩展名。
type MediaService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewMediaService(db *gorm.DB, cfg config.Config) *MediaService {
	return &MediaService{db: db, cfg: cfg}
}

// MediaDTO 上传成功后返回的数据。
type MediaDTO struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Kind     string `json:"kind"`
	Size     int64  `json:"size"`
}

// Save 嗅探内容类型、校验白名单并写入媒体目录，返回可访问的 URL。
func (s *MediaService) Save(userID string, src io.ReadSeeker, size int64) (*MediaDTO, error) {
	if size > int64(s.cfg.MaxUploadMB)<<20 {
		return nil, ErrMediaTooLarge
	}

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, err
	}
	kind, ok := kindOf(mtype.String())
	if !ok {
		return nil, ErrUnsupportedMedia
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.MediaDir, 0o755); err != nil {
		return nil, err
	}
	fileID := uuid.NewString()
	name := fileID + mtype.Extension()
	dst, err := os.Create(filepath.Join(s.cfg.MediaDir, name))
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.cfg.MediaDir, name))
		return nil, err
	}

	appendActivity(s.db, userID, models.ActivityMediaUploaded, fileID, models.TargetMessage)
	return &MediaDTO{URL: "/media/" + name, MimeType: mtype.String(), Kind: kind, Size: written}, nil
}

// kindOf 把嗅探出的 MIME 类型归到消息内容类型；白名单之外一律拒绝。
func kindOf(mime string) (string, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.TypeImage, true
	case strings.HasPrefix(mime, "video/"):
		return models.TypeVideo, true
	case strings.HasPrefix(mime, "audio/"):
		return models.TypeVoice, true
	case mime == "application/pdf", mime == "application/zip",
		mime == "application/msword",
		strings.HasPrefix(mime, "application/vnd.openxmlformats-officedocument"):
		return models.TypeDocument, true
	default:
		return "", false
	}
}
