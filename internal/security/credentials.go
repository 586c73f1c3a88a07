package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"medallion/internal/common"
	"medallion/pkg/errors"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyringService   = "medallion"
	saltSize         = 32
	pbkdf2Iterations = 100000
	keySize          = 32 // AES-256

	// KeyringPrefix marks a config value that names a stored credential
	KeyringPrefix = "keyring:"
)

// CredentialManager stores warehouse passwords in the system keyring, or in
// AES-GCM encrypted files when no keyring is available
type CredentialManager struct {
	useKeyring bool
	masterKey  []byte
	dir        string
}

// Credential represents a stored credential
type Credential struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Encrypted bool              `json:"encrypted"`
}

// NewCredentialManager creates a manager under ~/.medallion/credentials
func NewCredentialManager() (*CredentialManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "failed to resolve home directory")
	}
	return newManager(filepath.Join(home, ".medallion", "credentials"), isKeyringAvailable())
}

// NewFileCredentialManager always uses encrypted files in dir
func NewFileCredentialManager(dir string) (*CredentialManager, error) {
	return newManager(dir, false)
}

func newManager(dir string, useKeyring bool) (*CredentialManager, error) {
	cm := &CredentialManager{useKeyring: useKeyring, dir: dir}
	if !cm.useKeyring {
		key, err := cm.getMasterKey()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCredentialsInvalid, "failed to initialize master key").
				WithContext("path", dir)
		}
		cm.masterKey = key
	}
	return cm, nil
}

// UsesKeyring reports whether the system keyring backs this manager
func (cm *CredentialManager) UsesKeyring() bool {
	return cm.useKeyring
}

// StoreCredential securely stores a credential
func (cm *CredentialManager) StoreCredential(name, credType, value string, metadata map[string]string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if cm.useKeyring {
		return cm.storeInKeyring(name, credType, value, metadata)
	}
	return cm.storeEncrypted(name, credType, value, metadata)
}

// GetCredential retrieves a stored credential
func (cm *CredentialManager) GetCredential(name string) (*Credential, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var (
		cred *Credential
		err  error
	)
	if cm.useKeyring {
		cred, err = cm.getFromKeyring(name)
	} else {
		cred, err = cm.getEncrypted(name)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMissingCredentials, "credential not found").
			WithContext("credential", name).
			WithSuggestions(fmt.Sprintf("Run 'medallion credentials set %s'", name))
	}
	return cred, nil
}

// DeleteCredential removes a stored credential
func (cm *CredentialManager) DeleteCredential(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if cm.useKeyring {
		if err := keyring.Delete(keyringService, name); err != nil {
			return errors.Wrap(err, errors.ErrCodeMissingCredentials, "failed to delete credential").
				WithContext("credential", name)
		}
		return cm.updateCredentialIndex(name, false)
	}
	if err := os.Remove(cm.credentialPath(name)); err != nil {
		return errors.Wrap(err, errors.ErrCodeMissingCredentials, "failed to delete credential").
			WithContext("credential", name)
	}
	return nil
}

// ListCredentials returns the stored credential names, sorted
func (cm *CredentialManager) ListCredentials() ([]string, error) {
	var (
		names []string
		err   error
	)
	if cm.useKeyring {
		names, err = cm.getCredentialIndex()
	} else {
		names, err = cm.listEncrypted()
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ResolvePassword returns value unchanged unless it has the form
// "keyring:<name>", in which case the named credential is looked up
func (cm *CredentialManager) ResolvePassword(value string) (string, error) {
	if !strings.HasPrefix(value, KeyringPrefix) {
		return value, nil
	}
	cred, err := cm.GetCredential(strings.TrimPrefix(value, KeyringPrefix))
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return errors.ValidationError("credential", name, "name must be non-empty and must not contain path separators")
	}
	return nil
}

// Keyring storage

func (cm *CredentialManager) storeInKeyring(name, credType, value string, metadata map[string]string) error {
	data, err := json.Marshal(Credential{Name: name, Type: credType, Value: value, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, name, string(data)); err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialsInvalid, "failed to store in keyring").
			WithContext("credential", name)
	}
	return cm.updateCredentialIndex(name, true)
}

func (cm *CredentialManager) getFromKeyring(name string) (*Credential, error) {
	data, err := keyring.Get(keyringService, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get from keyring: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Encrypted file storage

func (cm *CredentialManager) storeEncrypted(name, credType, value string, metadata map[string]string) error {
	encrypted, err := cm.encrypt(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialsInvalid, "failed to encrypt credential")
	}
	return cm.writeSecure(cm.credentialPath(name), &Credential{
		Name:      name,
		Type:      credType,
		Value:     encrypted,
		Metadata:  metadata,
		Encrypted: true,
	})
}

func (cm *CredentialManager) getEncrypted(name string) (*Credential, error) {
	path, err := common.ValidatePath(cm.credentialPath(name), cm.dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path is validated
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	if cred.Encrypted {
		decrypted, err := cm.decrypt(cred.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential: %w", err)
		}
		cred.Value = decrypted
		cred.Encrypted = false
	}
	return &cred, nil
}

func (cm *CredentialManager) listEncrypted() ([]string, error) {
	entries, err := os.ReadDir(cm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cred") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".cred"))
		}
	}
	return names, nil
}

func (cm *CredentialManager) encrypt(plaintext string) (string, error) {
	gcm, err := newGCM(cm.masterKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (cm *CredentialManager) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(cm.masterKey)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// getMasterKey loads the salt+key file, creating it on first use
func (cm *CredentialManager) getMasterKey() ([]byte, error) {
	path, err := common.ValidatePath(filepath.Join(cm.dir, ".master"), cm.dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is validated
	if err == nil {
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(cm.dir, common.DirPermissionSecure); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, append(salt, key...), common.FilePermissionSecure); err != nil {
		return nil, err
	}
	return key, nil
}

func (cm *CredentialManager) credentialPath(name string) string {
	return filepath.Join(cm.dir, name+".cred")
}

func (cm *CredentialManager) indexPath() string {
	return filepath.Join(cm.dir, ".index")
}

func (cm *CredentialManager) writeSecure(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cm.dir, common.DirPermissionSecure); err != nil {
		return err
	}
	validated, err := common.ValidatePath(path, cm.dir)
	if err != nil {
		return err
	}
	return os.WriteFile(validated, data, common.FilePermissionSecure)
}

// The keyring cannot enumerate entries, so names are tracked in an index file
func (cm *CredentialManager) getCredentialIndex() ([]string, error) {
	data, err := os.ReadFile(cm.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (cm *CredentialManager) updateCredentialIndex(name string, add bool) error {
	index, err := cm.getCredentialIndex()
	if err != nil {
		return err
	}

	updated := []string{}
	for _, n := range index {
		if n != name {
			updated = append(updated, n)
		}
	}
	if add {
		updated = append(updated, name)
	}
	return cm.writeSecure(cm.indexPath(), updated)
}

func isKeyringAvailable() bool {
	if os.Getenv("MEDALLION_USE_KEYRING") == "false" {
		return false
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	}
	return false
}

func machineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)))
	return base64.StdEncoding.EncodeToString(hash[:])
}
