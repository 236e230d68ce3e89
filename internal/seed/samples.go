package seed

import "github.com/filedepot/filedepot/internal/models"

var sampleCategories = []models.Category{
	{Name: "문서", Icon: "📄", Color: "#3b82f6"},
	{Name: "이미지", Icon: "🖼️", Color: "#10b981"},
	{Name: "동영상", Icon: "🎬", Color: "#f59e0b"},
	{Name: "오디오", Icon: "🎵", Color: "#ec4899"},
	{Name: "기타", Icon: "📦", Color: "#8b5cf6"},
}

type samplePost struct {
	title       string
	category    int // index into sampleCategories
	created     string
	attachments []models.Attachment
}

var samplePosts = []samplePost{
	{
		title:    "프로젝트 제안서",
		category: 0,
		created:  "2025-01-15",
		attachments: []models.Attachment{
			{FileName: "프로젝트_제안서_v1.pdf", FileSize: 2457600, FilePath: "/uploads/sample1.pdf"},
			{FileName: "프로젝트_제안서_v2.pdf", FileSize: 2500000, FilePath: "/uploads/sample1-2.pdf"},
		},
	},
	{
		title:    "회사 브랜딩 자료",
		category: 1,
		created:  "2025-01-20",
		attachments: []models.Attachment{
			{FileName: "로고.png", FileSize: 524288, FilePath: "/uploads/sample2.png"},
			{FileName: "배너.jpg", FileSize: 2097152, FilePath: "/uploads/sample2-2.jpg"},
			{FileName: "명함.png", FileSize: 300000, FilePath: "/uploads/sample2-3.png"},
		},
	},
	{
		title:    "제품 소개 영상",
		category: 2,
		created:  "2025-01-22",
		attachments: []models.Attachment{
			{FileName: "제품소개_KR.mp4", FileSize: 15728640, FilePath: "/uploads/sample3.mp4"},
			{FileName: "제품소개_EN.mp4", FileSize: 16000000, FilePath: "/uploads/sample3-2.mp4"},
		},
	},
	{
		title:    "사업계획서",
		category: 0,
		created:  "2025-01-18",
		attachments: []models.Attachment{
			{FileName: "사업계획서.docx", FileSize: 1843200, FilePath: "/uploads/sample4.docx"},
		},
	},
	{
		title:    "마케팅 자료",
		category: 1,
		created:  "2025-01-21",
		attachments: []models.Attachment{
			{FileName: "제품사진1.png", FileSize: 3145728, FilePath: "/uploads/sample5.png"},
			{FileName: "제품사진2.png", FileSize: 3200000, FilePath: "/uploads/sample5-2.png"},
			{FileName: "제품사진3.png", FileSize: 3100000, FilePath: "/uploads/sample5-3.png"},
		},
	},
}
