// Package semver handles the vMAJOR.MINOR.PATCH versions exchanged through the gateway.
package semver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

var (
	ErrParse = errors.New("could not parse provided string into semantic version")

	versionRe = regexp.MustCompile(`^v(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)
)

type Version struct {
	Major int `json:"major,omitempty"`
	Minor int `json:"minor,omitempty"`
	Patch int `json:"patch,omitempty"`
}

// Parse reads a version of the form v1.2.3, leading zeros are rejected.
func Parse(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, ErrParse
	}
	var parts [3]int
	for i, digits := range m[1:] {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		parts[i] = n
	}
	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less orders versions by major, then minor, then patch.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// Compatible reports whether a client of version v can fetch from a server of
// version server. Only the major version has to match.
func (v Version) Compatible(server Version) bool {
	return v.Major == server.Major
}

// GetServerVersion asks the gateway at addr for the version of the xfer server behind it.
func GetServerVersion(ctx context.Context, addr string) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/version", nil)
	if err != nil {
		return Version{}, fmt.Errorf("creating version request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return Version{}, fmt.Errorf("fetching version from gateway: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Version{}, fmt.Errorf("fetching version from gateway: unexpected status %s", res.Status)
	}
	var v Version
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		return Version{}, fmt.Errorf("decoding version from gateway: %w", err)
	}
	return v, nil
}
