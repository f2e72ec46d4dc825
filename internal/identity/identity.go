// Package identity keeps the acting user between CLI invocations. It is a
// mock: there are no passwords and nothing is verified.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voicelocal/voicelocal/internal/models"
)

const (
	// FileName is the identity file inside the state directory.
	FileName = "identity.yaml"
	// Key names the stored record.
	Key = "voicelocal_user"
	// Version is the current file format version.
	Version = 1
)

// ErrNoIdentity is returned by Load when nobody is logged in.
var ErrNoIdentity = errors.New("not logged in")

type document struct {
	Version int          `yaml:"version"`
	Key     string       `yaml:"key"`
	User    *models.User `yaml:"user"`
}

// File is an identity file on disk.
type File struct {
	Path string
}

// NewFile returns the identity file inside stateDir.
func NewFile(stateDir string) *File {
	return &File{Path: filepath.Join(stateDir, FileName)}
}

// Load reads the saved user. It returns ErrNoIdentity when the file does not
// exist.
func (f *File) Load() (*models.User, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse identity %s: %w", f.Path, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("identity %s: unsupported version %d", f.Path, doc.Version)
	}
	if doc.Key != Key {
		return nil, fmt.Errorf("identity %s: unexpected key %q", f.Path, doc.Key)
	}
	if err := models.ValidateActor(doc.User); err != nil {
		return nil, fmt.Errorf("identity %s: %w", f.Path, err)
	}
	if doc.User.Role == "" {
		doc.User.Role = models.UserRoleUser
	}
	return doc.User, nil
}

// Save writes u as the current identity, replacing any previous one.
func (f *File) Save(u *models.User) error {
	if err := models.ValidateActor(u); err != nil {
		return err
	}
	data, err := yaml.Marshal(document{Version: Version, Key: Key, User: u})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// Clear removes the identity file. Clearing when nobody is logged in is not
// an error.
func (f *File) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove identity: %w", err)
	}
	return nil
}

// FromEmail builds a mock user for an email address. The id and default
// display name come from the local part; addresses containing "admin" get the
// admin role.
func FromEmail(email, name string) (*models.User, error) {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return nil, &models.ValidationError{Field: "email", Message: fmt.Sprintf("invalid email address %q", email)}
	}

	u := &models.User{
		ID:          strings.ToLower(local),
		DisplayName: strings.TrimSpace(name),
		Email:       email,
		Role:        models.UserRoleUser,
	}
	if u.DisplayName == "" {
		u.DisplayName = local
	}
	if strings.Contains(strings.ToLower(email), "admin") {
		u.Role = models.UserRoleAdmin
	}
	return u, nil
}
