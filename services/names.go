package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/Dosada05/league-orchestrator/models"
)

const (
	maxInstanceNameLength = 60
	maxURLBaseLength      = 40
	maxDisplayNameLength  = 64
)

func normalizeName(s string) string {
	return models.NameKey(s)
}

func sameName(a, b string) bool {
	return normalizeName(a) == normalizeName(b)
}

var suffixPattern = regexp.MustCompile(`^(.*\S)-(\d+)$`)

// successorName derives the next instance name in a rollover chain: T1 -> T1-2 -> T1-3.
func successorName(name string) string {
	name = strings.TrimSpace(name)
	if m := suffixPattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("%s-%d", m[1], n+1)
		}
	}
	return name + "-2"
}

// urlBase turns an instance name into the provider-safe part of its url slug.
// The provider accepts letters, digits and underscores only.
func urlBase(name string) string {
	base := strings.ReplaceAll(slug.Make(name), "-", "_")
	if base == "" {
		base = "league"
	}
	if len(base) > maxURLBaseLength {
		base = strings.TrimRight(base[:maxURLBaseLength], "_")
	}
	return base
}

// instanceURL appends a unix timestamp, bumped by offset seconds when the first choice is taken.
func instanceURL(name string, now time.Time, offset int64) string {
	return fmt.Sprintf("%s%d", urlBase(name), now.Unix()+offset)
}

func validateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationErr(CodeInvalidInput, "display_name", "display name is required")
	}
	if len([]rune(name)) > maxDisplayNameLength {
		return validationErr(CodeInvalidInput, "display_name", "display name must be at most %d characters", maxDisplayNameLength)
	}
	return nil
}

func validateCommunityID(id string) error {
	if strings.TrimSpace(id) == "" {
		return validationErr(CodeInvalidInput, "community_id", "community id is required")
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
