package model

import (
	"path"
	"strings"
	"time"
)

// Image is one processed upload and its AI annotations.
type Image struct {
	ID           string    `json:"id"`            // 存储分配
	UserID       string    `json:"user_id"`       // 上传用户 ID
	FilePath     string    `json:"file_path"`     // <user_id>/<name>.<ext>
	FileName     string    `json:"file_name"`     // 文件名
	Description  *string   `json:"description"`   // AI 描述
	ColorPalette []string  `json:"color_palette"` // 主色调 (hex)
	Embedding    []float32 `json:"embedding,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // 上传时间
}

// OwnerFromPath returns the first segment of a storage path.
func OwnerFromPath(p string) string {
	owner, _, ok := strings.Cut(p, "/")
	if !ok {
		return ""
	}
	return owner
}

// FileNameFromPath returns the last segment of a storage path.
func FileNameFromPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}
