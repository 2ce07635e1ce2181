// Package models holds the request/response shapes exchanged with the
// progress server (internal/progressserver) and the cobra CLI (cmd/galaxydl).
package models

// DownloadRequest asks for an item set (a whole depot, or a specific
// product's latest build) to be fetched and verified into OutDir.
type DownloadRequest struct {
	ProductID   uint64   `json:"product_id" validate:"required"`
	Platform    string   `json:"platform" validate:"oneof=windows osx linux"`
	BuildID     string   `json:"build_id,omitempty"`
	OutDir      string   `json:"out_dir" validate:"required"`
	Languages   []string `json:"languages,omitempty"`
	RawMode     bool     `json:"raw_mode,omitempty"`
}

// PatchRequest asks for an xdelta3 patch's metadata and chunks to be
// resolved and downloaded, without applying the patch (spec.md §4.5/4.6
// Non-goals: download-only).
type PatchRequest struct {
	ProductID   uint64 `json:"product_id" validate:"required"`
	FromBuildID string `json:"from_build_id" validate:"required"`
	ToBuildID   string `json:"to_build_id" validate:"required"`
	Language    string `json:"language,omitempty"`
	OutDir      string `json:"out_dir" validate:"required"`
}

// PackRequest asks for a local v2 CDN tree to be packed into an RGOG
// archive.
type PackRequest struct {
	SrcDir      string `json:"src_dir" validate:"required"`
	OutDir      string `json:"out_dir" validate:"required"`
	OutBaseName string `json:"out_base_name" validate:"required"`
	ProductID   uint64 `json:"product_id" validate:"required"`
	ProductName string `json:"product_name,omitempty"`
	MaxPartSize int64  `json:"max_part_size,omitempty"`
}

// ExtractRequest asks for an RGOG archive to be unpacked or reassembled.
type ExtractRequest struct {
	ArchivePath string `json:"archive_path" validate:"required"`
	OutDir      string `json:"out_dir" validate:"required"`
	BuildID     uint64 `json:"build_id,omitempty"`
	Reassemble  bool   `json:"reassemble,omitempty"`
	ChunksOnly  bool   `json:"chunks_only,omitempty"`
}

// TaskResponse is returned immediately on task submission.
type TaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TaskStatus is the polled/broadcast state of a submitted task.
type TaskStatus struct {
	TaskID   string   `json:"task_id"`
	Status   string   `json:"status" validate:"oneof=running completed failed cancelled pending"`
	Progress *float64 `json:"progress,omitempty"`
	Error    *string  `json:"error,omitempty"`
}
