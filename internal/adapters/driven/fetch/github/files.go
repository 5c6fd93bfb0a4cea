package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	gh "github.com/google/go-github/v80/github"
)

// MaxFileSize is the largest file fetched, in bytes.
const MaxFileSize = 1024 * 1024

// fetchBlobContent fetches the content of a blob and decodes it.
func fetchBlobContent(ctx context.Context, client *Client, owner, repo, sha string) ([]byte, error) {
	blob, err := client.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

// textFiles returns the tree entries worth fetching.
func textFiles(tree *gh.Tree, include []string) []*gh.TreeEntry {
	var out []*gh.TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if !matchesPatterns(p, include) || isBinaryExtension(p) || isVendored(p) {
			continue
		}
		if entry.GetSize() > MaxFileSize {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// browseURL is the canonical github.com URL of a file.
func browseURL(owner, repo, branch, p string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, p)
}

// matchesPatterns checks if a path matches any of the glob patterns.
// Patterns match the base name or the full path; a trailing "/**" matches
// everything under a directory.
func matchesPatterns(p string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, pattern := range patterns {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(p, dir+"/") {
				return true
			}
			continue
		}
		if matched, err := filepath.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, p); err == nil && matched {
			return true
		}
	}
	return false
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(p string) bool {
	return binaryExts[strings.ToLower(path.Ext(p))]
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true, ".jar": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true, ".svg": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wav": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
	".pyc": true, ".pyo": true, ".class": true, ".o": true, ".a": true,
	".lock": true,
}

// isVendored skips dependency directories that would swamp the knowledge base.
func isVendored(p string) bool {
	for _, dir := range []string{"vendor/", "node_modules/", ".git/"} {
		if strings.HasPrefix(p, dir) || strings.Contains(p, "/"+dir) {
			return true
		}
	}
	return false
}

// isBinaryContent reports content that is not UTF-8 text. Like git, a NUL
// byte in the first 8000 bytes marks a file as binary.
func isBinaryContent(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0 || !utf8.Valid(data)
}

// isBlank reports content with nothing but whitespace, such as a bare
// __init__.py or .gitkeep.
func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}
