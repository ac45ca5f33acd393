package avatar

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GravatarURL is shown until the user uploads a picture. Unknown addresses get
// the "mystery person" placeholder.
func GravatarURL(email string, size int) string {
	if size <= 0 {
		size = Size
	}
	hash := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}

// URLFor prefers the uploaded avatar and falls back to Gravatar.
func URLFor(uploaded, email string) string {
	if uploaded != "" {
		return uploaded
	}
	return GravatarURL(email, Size)
}
