package walker

import (
	"fmt"
	"strconv"
	"strings"
)

const wallURL = "https://vk.com/"

// Source is a community wall, addressed either by numeric id or by its
// short address (domain).
type Source struct {
	Key     string // table key the source was parsed from
	OwnerID int64  // negative community id; zero when Domain is set
	Domain  string
}

// ParseSource interprets a table key. Numeric keys are community ids and
// address the wall of -|id|; anything else is taken as a short address.
func ParseSource(key string) Source {
	key = strings.TrimSpace(key)
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		if n > 0 {
			n = -n
		}
		return Source{Key: key, OwnerID: n}
	}
	domain := strings.TrimPrefix(key, wallURL)
	domain = strings.TrimPrefix(domain, "http://vk.com/")
	domain = strings.Trim(domain, "/")
	return Source{Key: key, Domain: domain}
}

// Params returns the wall.get parameters selecting this wall.
func (s Source) Params() map[string]string {
	if s.Domain != "" {
		return map[string]string{"domain": s.Domain}
	}
	return map[string]string{"owner_id": strconv.FormatInt(s.OwnerID, 10)}
}

// URL returns the public address of the wall.
func (s Source) URL() string {
	if s.Domain != "" {
		return wallURL + s.Domain
	}
	id := s.OwnerID
	if id < 0 {
		id = -id
	}
	return fmt.Sprintf("%sclub%d", wallURL, id)
}

func (s Source) String() string {
	return s.Key
}
