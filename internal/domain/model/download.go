package model

import (
	"regexp"
	"strings"
	"time"
)

// DownloadGrantTTL is how long a single-use link stays redeemable.
const DownloadGrantTTL = 24 * time.Hour

// DownloadGrant is a single-use token for one file download, stored at
// downloadLinks/{token}.
type DownloadGrant struct {
	Token        string     `json:"token"`
	ContentID    string     `json:"contentId"`
	ContentTitle string     `json:"contentTitle"`
	FileID       string     `json:"fileId"`
	UserID       string     `json:"userId,omitempty"`
	Used         bool       `json:"used"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

func DownloadGrantPath(token string) string { return "downloadLinks/" + token }

// Expired reports whether the grant can no longer be redeemed at now.
func (g *DownloadGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

var driveFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`drive\.google\.com/open\?id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`docs\.google\.com/file/d/([a-zA-Z0-9_-]+)`),
}

// IsDriveURL reports whether url points at the cloud drive host.
func IsDriveURL(url string) bool {
	return strings.Contains(url, "drive.google.com") || strings.Contains(url, "docs.google.com")
}

// ExtractDriveFileID pulls the file id out of a cloud drive share URL.
func ExtractDriveFileID(url string) (string, bool) {
	for _, re := range driveFilePatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

const maxFilenameLen = 200

// SanitizeFilename strips characters that are unsafe in file names, replaces
// whitespace runs with underscores and caps the length.
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "")
	s = whitespaceRun.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > maxFilenameLen {
		s = string(r[:maxFilenameLen])
	}
	return s
}

// DownloadFilename is the attachment name offered for a title. The extension
// is part of the capped name.
func DownloadFilename(title string) string {
	return SanitizeFilename(title + ".mp4")
}
