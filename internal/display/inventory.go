package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// inventoryFileMode keeps the inventory owner-only: after a webOS
// pairing the file holds client tokens, which are credentials.
const inventoryFileMode = 0o600

// inventoryTemplate is written when the configured inventory file does
// not exist, giving the operator a starting point to edit.
const inventoryTemplate = `# VenueCast display inventory.
#
# Two groups: inside and outside. Each entry needs a name and an ip.
# protocol is adb (Android TV, the default) or webos (LG TV). webos
# entries also need the TV's mac so it can be woken over the LAN; the
# token field is filled in automatically once pairing is accepted on
# the TV screen.

inside:
  - name: Bar Left
    ip: 192.168.1.101
  - name: Bar Right
    ip: 192.168.1.102

outside:
  - name: Terrace
    ip: 192.168.1.110
    protocol: webos
    mac: "28:3F:69:00:11:22"
`

// inventoryFile mirrors the on-disk YAML layout: two lists, one per group.
type inventoryFile struct {
	Inside  []inventoryEntry `yaml:"inside"`
	Outside []inventoryEntry `yaml:"outside"`
}

// inventoryEntry is a single display declaration in the inventory file.
type inventoryEntry struct {
	Name     string `yaml:"name"`
	IP       string `yaml:"ip"`
	Protocol string `yaml:"protocol,omitempty"`
	MAC      string `yaml:"mac,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// Inventory reads and writes the display inventory file.
//
// Load validates the whole file as a unit. SaveToken rewrites the file
// atomically; concurrent write-backs serialise on an internal mutex.
type Inventory struct {
	path string
	mu   sync.Mutex
}

// NewInventory creates an inventory backed by the YAML file at path.
func NewInventory(path string) *Inventory {
	return &Inventory{path: path}
}

// Path returns the inventory file location.
func (inv *Inventory) Path() string {
	return inv.path
}

// Load reads, parses, and validates the inventory file.
//
// A missing file is not silently tolerated: Load writes a commented
// template to the configured path and returns ErrInventoryMissing so
// startup fails with an instruction to edit the template first.
//
// Returns:
//   - []Display: Every declared display, inside group first, in file order
//   - error: ErrInventoryMissing, ErrInvalidInventory, or a read/parse error
func (inv *Inventory) Load() ([]Display, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	data, err := os.ReadFile(inv.path)
	if os.IsNotExist(err) {
		if writeErr := inv.writeTemplate(); writeErr != nil {
			return nil, fmt.Errorf("writing inventory template: %w", writeErr)
		}
		return nil, fmt.Errorf("%w: template written to %s, edit it and restart", ErrInventoryMissing, inv.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}

	displays := flattenInventory(&file)
	if err := ValidateInventory(displays); err != nil {
		return nil, err
	}

	return displays, nil
}

// SaveToken persists a webOS pairing token for the given display ID.
//
// The file is re-read before writing so operator edits made since Load
// are not clobbered, then replaced atomically: the new content goes to
// a temp file in the same directory and is renamed over the original.
// A crash mid-write leaves the previous file intact.
//
// Parameters:
//   - id: Derived display ID (group-name slug)
//   - token: Pairing token to store; empty clears a stale token
//
// Returns:
//   - error: ErrDisplayNotFound if no entry matches, otherwise any I/O error
func (inv *Inventory) SaveToken(id, token string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	data, err := os.ReadFile(inv.path)
	if err != nil {
		return fmt.Errorf("reading inventory: %w", err)
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing inventory: %w", err)
	}

	if !setEntryToken(&file, id, token) {
		return fmt.Errorf("%w: %s", ErrDisplayNotFound, id)
	}

	out, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshalling inventory: %w", err)
	}

	return inv.replaceFile(out)
}

// flattenInventory converts the two on-disk lists into Display values,
// assigning groups, default protocols, and derived IDs.
func flattenInventory(file *inventoryFile) []Display {
	displays := make([]Display, 0, len(file.Inside)+len(file.Outside))
	for _, entry := range file.Inside {
		displays = append(displays, entryToDisplay(entry, GroupInside))
	}
	for _, entry := range file.Outside {
		displays = append(displays, entryToDisplay(entry, GroupOutside))
	}
	return displays
}

// entryToDisplay normalises a raw inventory entry. Whitespace is
// trimmed, a blank protocol defaults to adb, and the ID is derived
// from group and name.
func entryToDisplay(entry inventoryEntry, group Group) Display {
	name := strings.TrimSpace(entry.Name)

	protocol := Protocol(strings.ToLower(strings.TrimSpace(entry.Protocol)))
	if protocol == "" {
		protocol = ProtocolADB
	}

	return Display{
		ID:       GenerateID(group, name),
		Name:     name,
		IP:       strings.TrimSpace(entry.IP),
		Protocol: protocol,
		MAC:      strings.TrimSpace(entry.MAC),
		Token:    strings.TrimSpace(entry.Token),
		Group:    group,
	}
}

// setEntryToken locates the entry whose derived ID matches and updates
// its token in place. Returns false if no entry matches.
func setEntryToken(file *inventoryFile, id, token string) bool {
	for i := range file.Inside {
		if GenerateID(GroupInside, strings.TrimSpace(file.Inside[i].Name)) == id {
			file.Inside[i].Token = token
			return true
		}
	}
	for i := range file.Outside {
		if GenerateID(GroupOutside, strings.TrimSpace(file.Outside[i].Name)) == id {
			file.Outside[i].Token = token
			return true
		}
	}
	return false
}

// replaceFile atomically replaces the inventory file contents.
func (inv *Inventory) replaceFile(data []byte) error {
	dir := filepath.Dir(inv.path)

	tmp, err := os.CreateTemp(dir, ".displays-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp inventory: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp inventory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp inventory: %w", err)
	}
	if err := os.Chmod(tmpPath, inventoryFileMode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting inventory permissions: %w", err)
	}
	if err := os.Rename(tmpPath, inv.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing inventory: %w", err)
	}

	return nil
}

// writeTemplate creates the inventory template at the configured path,
// creating parent directories as needed.
func (inv *Inventory) writeTemplate() error {
	if dir := filepath.Dir(inv.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(inv.path, []byte(inventoryTemplate), inventoryFileMode)
}
