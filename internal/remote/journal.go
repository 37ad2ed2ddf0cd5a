package remote

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultAuthor is recorded when a write carries no author.
var defaultAuthor = Author{Name: "CMS User", Email: "cms@example.com"}

// BlobHash returns the git blob object id of content. Local and in-memory
// stores use it as the content hash so hashes match what GitHub reports for
// the same bytes.
func BlobHash(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// journal is the in-process commit log shared by the local and memory stores.
type journal struct {
	mu      sync.Mutex
	commits []CommitRecord
	now     func() time.Time
}

func newJournal() *journal {
	return &journal{now: time.Now}
}

func (j *journal) record(path, message string, author *Author, content []byte, deleted bool) *CommitResult {
	a := defaultAuthor
	if author != nil {
		a = *author
	}

	commit := CommitRecord{
		SHA:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Message: message,
		Author:  a,
		Date:    j.now().UTC(),
	}

	j.mu.Lock()
	j.commits = append(j.commits, commit)
	j.mu.Unlock()

	result := &CommitResult{
		Path:      path,
		CommitSHA: commit.SHA,
		Message:   message,
		Author:    a,
		Date:      commit.Date,
	}
	if !deleted {
		result.ContentHash = BlobHash(content)
		result.Size = int64(len(content))
	}
	return result
}

func (j *journal) list(limit int) []CommitRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > len(j.commits) {
		limit = len(j.commits)
	}
	out := make([]CommitRecord, 0, limit)
	for i := len(j.commits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.commits[i])
	}
	return out
}

func (j *journal) last() (CommitRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.commits) == 0 {
		return CommitRecord{}, false
	}
	return j.commits[len(j.commits)-1], true
}

func fileEntry(path string, content []byte, withContent bool) RemoteFile {
	f := RemoteFile{
		Name:        lastSegment(path),
		Path:        path,
		ContentHash: BlobHash(content),
		Size:        int64(len(content)),
		Type:        TypeFile,
	}
	if withContent {
		f.Content = base64.StdEncoding.EncodeToString(content)
		f.Encoding = EncodingBase64
	}
	return f
}
