// Package github fetches repository files through the GitHub REST API.
//
// The whole tree is listed with one recursive call, then each text file is
// read as a blob. Binary files (by extension or content) and files over
// MaxFileSize are skipped. Requests are throttled proactively with a token
// bucket and reactively from the X-RateLimit-* headers.
//
// A token is optional. Without one GitHub allows 60 requests per hour,
// which is enough only for small repositories.
package github
