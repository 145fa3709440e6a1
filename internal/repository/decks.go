package repository

import (
	"context"
	"time"
)

// DeckStatus 描述 deck 的发布生命周期。
type DeckStatus string

const (
	DeckStatusPending   DeckStatus = "PENDING"
	DeckStatusProcessed DeckStatus = "PROCESSED"
)

// DisplayMode 决定查看端展示原始文档还是页面图片。
type DisplayMode string

const (
	DisplayModeRaw         DisplayMode = "raw"
	DisplayModeInteractive DisplayMode = "interactive"
)

func (m DisplayMode) Valid() bool {
	return m == DisplayModeRaw || m == DisplayModeInteractive
}

// FileType 是源文档格式。
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypePPT  FileType = "ppt"
	FileTypePPTX FileType = "pptx"
	FileTypePPS  FileType = "pps"
	FileTypePPSX FileType = "ppsx"
	FileTypeKey  FileType = "key"
	FileTypeODP  FileType = "odp"
	FileTypeDOC  FileType = "doc"
	FileTypeDOCX FileType = "docx"
)

var officeTypes = map[FileType]string{
	FileTypePPT:  "application/vnd.ms-powerpoint",
	FileTypePPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	FileTypePPS:  "application/vnd.ms-powerpoint",
	FileTypePPSX: "application/vnd.openxmlformats-officedocument.presentationml.slideshow",
	FileTypeKey:  "application/x-iwork-keynote-sffkey",
	FileTypeODP:  "application/vnd.oasis.opendocument.presentation",
	FileTypeDOC:  "application/msword",
	FileTypeDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Rasterizable 表示可在本地直接逐页渲染的格式。
func (t FileType) Rasterizable() bool { return t == FileTypePDF }

// Office 表示需要远程转换的办公文档格式。
func (t FileType) Office() bool {
	_, ok := officeTypes[t]
	return ok
}

func (t FileType) Valid() bool { return t.Rasterizable() || t.Office() }

// ContentType 返回该格式的 MIME 类型。
func (t FileType) ContentType() string {
	if t == FileTypePDF {
		return "application/pdf"
	}
	if ct, ok := officeTypes[t]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SlidePage 是已发布的单页图片。
type SlidePage struct {
	ImageURL   string `json:"image_url"`
	PageNumber int    `json:"page_number"`
}

// DeckRecord 代表数据库中的 deck 记录。
type DeckRecord struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	FileURL     string         `json:"file_url"`
	FilePath    string         `json:"file_path"`
	Pages       []SlidePage    `json:"pages"`
	Status      DeckStatus     `json:"status"`
	FileType    FileType       `json:"file_type"`
	DisplayMode DisplayMode    `json:"display_mode"`
	FileSize    int64          `json:"file_size"`
	Access      map[string]any `json:"access,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DeckUpdate 描述对记录的部分更新，nil 字段保持不变。
type DeckUpdate struct {
	Title       *string
	Description *string
	FileURL     *string
	FilePath    *string
	Pages       *[]SlidePage
	Status      *DeckStatus
	FileType    *FileType
	DisplayMode *DisplayMode
	FileSize    *int64
	Access      map[string]any
	ExpiresAt   *time.Time
}

// Empty 表示没有任何字段需要写入。
func (u DeckUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.FileURL == nil && u.FilePath == nil &&
		u.Pages == nil && u.Status == nil && u.FileType == nil && u.DisplayMode == nil &&
		u.FileSize == nil && u.Access == nil && u.ExpiresAt == nil
}

// ListDecksParams 用于分页检索 deck。
type ListDecksParams struct {
	Statuses []DeckStatus
	Limit    int
	Offset   int
}

// DeckRepository 统一 deck 记录持久层接口。
type DeckRepository interface {
	Create(ctx context.Context, record *DeckRecord) (*DeckRecord, error)
	GetByID(ctx context.Context, id string) (*DeckRecord, error)
	GetBySlug(ctx context.Context, ownerID, slug string) (*DeckRecord, error)
	ListByOwner(ctx context.Context, ownerID string, params ListDecksParams) ([]DeckRecord, error)
	ListOwnerIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, update DeckUpdate) error
}

// AccountRepository 读取账户等级。
type AccountRepository interface {
	// Tier 返回用户的订阅等级，未登记的用户返回空串。
	Tier(ctx context.Context, userID string) (string, error)
}
