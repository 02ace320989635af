package display

import (
	"fmt"
	"net"
	"strings"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
)

// ValidateInventory checks every display and reports every problem in
// a single error. Validation is atomic: one bad entry rejects the
// whole inventory, and the operator sees the complete problem list
// rather than the first failure.
//
// Checks per display: name present and within length, IP present and
// parseable, protocol recognised, MAC parseable when present, MAC
// required for webOS entries (wake-on-LAN needs it), and no two
// entries in a group sharing a name.
//
// Parameters:
//   - displays: The flattened inventory, inside group first
//
// Returns:
//   - error: nil if everything passed, otherwise ErrInvalidInventory
//     wrapped with all problems joined by "; "
func ValidateInventory(displays []Display) error {
	var problems []string

	ordinals := make(map[Group]int, 2)
	seenIDs := make(map[string]string, len(displays))

	for i := range displays {
		d := &displays[i]
		ordinals[d.Group]++
		ref := displayRef(d, ordinals[d.Group])

		problems = append(problems, validateDisplay(d, ref)...)

		// Duplicate detection runs on derived IDs, so two names that
		// slug to the same value within a group also collide.
		if d.ID == "" {
			continue
		}
		if prior, ok := seenIDs[d.ID]; ok {
			problems = append(problems, fmt.Sprintf("%s: duplicate of %s", ref, prior))
		} else {
			seenIDs[d.ID] = ref
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInventory, strings.Join(problems, "; "))
	}
	return nil
}

// validateDisplay returns every problem found on a single display,
// each prefixed with the entry reference.
func validateDisplay(d *Display, ref string) []string {
	var problems []string

	switch {
	case d.Name == "":
		problems = append(problems, fmt.Sprintf("%s: name is required", ref))
	case len(d.Name) > maxNameLength:
		problems = append(problems, fmt.Sprintf("%s: name exceeds %d characters", ref, maxNameLength))
	case d.ID == "":
		// The ID is the slugged name; a name with no usable characters
		// would leave the display unaddressable.
		problems = append(problems, fmt.Sprintf("%s: name %q contains no usable characters", ref, d.Name))
	}

	if d.IP == "" {
		problems = append(problems, fmt.Sprintf("%s: ip is required", ref))
	} else if net.ParseIP(d.IP) == nil {
		problems = append(problems, fmt.Sprintf("%s: invalid ip %q", ref, d.IP))
	}

	if !validProtocol(d.Protocol) {
		problems = append(problems, fmt.Sprintf("%s: unknown protocol %q", ref, d.Protocol))
	}

	switch {
	case d.MAC == "" && d.Protocol == ProtocolWebOS:
		problems = append(problems, fmt.Sprintf("%s: webos displays need a mac for wake-on-lan", ref))
	case d.MAC != "":
		if _, err := net.ParseMAC(d.MAC); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid mac %q", ref, d.MAC))
		}
	}

	return problems
}

// displayRef names an inventory entry in validation messages. Entries
// with a name are referenced by it; nameless entries by their 1-based
// position within their group list.
func displayRef(d *Display, ordinal int) string {
	if d.Name == "" {
		return fmt.Sprintf("%s entry %d", d.Group, ordinal)
	}
	return fmt.Sprintf("%s %q", d.Group, d.Name)
}

// validProtocol reports whether a protocol value is recognised.
func validProtocol(p Protocol) bool {
	switch p {
	case ProtocolADB, ProtocolWebOS:
		return true
	}
	return false
}

// GenerateID derives the stable display ID from group and name.
// Example: GenerateID(GroupInside, "Bar Left") == "inside-bar-left".
//
// The ID doubles as the duplicate key during validation and as the
// lookup key for token write-back, so it must stay deterministic.
func GenerateID(group Group, name string) string {
	slug := GenerateSlug(name)
	if slug == "" {
		return ""
	}
	return string(group) + "-" + slug
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	// Convert to lowercase
	slug := strings.ToLower(name)

	// Replace spaces and underscores with hyphens
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Remove leading/trailing hyphens and collapse multiple hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate if too long
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		// Don't end with a hyphen
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}
