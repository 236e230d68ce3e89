package models

// DateLayout is the calendar date format of Post.CreatedDate.
const DateLayout = "2006-01-02"

// Post is a titled bundle of up to MaxAttachmentsPerPost files
type Post struct {
	ID          int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Title       string `gorm:"type:varchar(512);not null;column:title" json:"title"`
	CategoryID  *int64 `gorm:"index;column:category_id" json:"category_id"`
	CreatedDate string `gorm:"type:varchar(10);index;column:created_date" json:"created_date"`

	// Relationships
	Category *Category `gorm:"foreignKey:CategoryID;references:ID" json:"-"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// MaxAttachmentsPerPost caps the number of attachments of a single post.
const MaxAttachmentsPerPost = 5

// PostSummary is a post with its attachment aggregates.
type PostSummary struct {
	ID              int64  `gorm:"column:id" json:"id"`
	Title           string `gorm:"column:title" json:"title"`
	CategoryID      *int64 `gorm:"column:category_id" json:"category_id"`
	CreatedDate     string `gorm:"column:created_date" json:"created_date"`
	AttachmentCount int64  `gorm:"column:attachment_count" json:"attachment_count"`
	TotalSize       int64  `gorm:"column:total_size" json:"total_size"`
}

// PostDetail is a post summary together with its attachments.
type PostDetail struct {
	PostSummary
	Attachments []Attachment `json:"attachments"`
}
