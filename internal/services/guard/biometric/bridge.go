package biometric

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/omnisign/sessionguard/internal/platform/id"
	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
)

// CeremonyKind names the WebAuthn call the page must run.
type CeremonyKind string

const (
	CeremonyRegistration   CeremonyKind = "registration"
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Ceremony is one pending navigator.credentials call. Options is the JSON the
// page passes to create() or get().
type Ceremony struct {
	ID       string          `json:"id"`
	Kind     CeremonyKind    `json:"kind"`
	Options  json.RawMessage `json:"options"`
	Deadline time.Time       `json:"deadline"`
}

// Platform runs ceremonies against the device authenticator and returns the
// raw credential response JSON.
type Platform interface {
	Available(ctx context.Context) bool
	Create(ctx context.Context, ceremony Ceremony) ([]byte, error)
	Get(ctx context.Context, ceremony Ceremony) ([]byte, error)
}

type relyingParty interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

type credentialParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultCredentialParser struct{}

func (defaultCredentialParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultCredentialParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// credentialRecord is what the guard keeps under biometric_credential.
type credentialRecord struct {
	UserHandle string              `json:"userHandle"`
	Credential webauthn.Credential `json:"credential"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Bridge registers and exercises one platform credential for the device owner.
type Bridge struct {
	keys     *storage.Keyspace
	platform Platform
	config   Config
	rp       relyingParty
	rpErr    error
	parser   credentialParser
	clock    func() time.Time
	newID    func() (string, error)

	// registerMu keeps two enrollments from racing each other.
	registerMu sync.Mutex
}

// NewBridge builds a relying party from config. A configuration the WebAuthn
// library rejects leaves the bridge permanently unavailable.
func NewBridge(config Config, keys *storage.Keyspace, platform Platform) *Bridge {
	config = config.withDefaults()
	rp, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPDisplayName,
		RPID:          config.RPID,
		RPOrigins:     config.RPOrigins,
		Timeouts: webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    config.CeremonyTimeout,
				TimeoutUVD: config.CeremonyTimeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    config.CeremonyTimeout,
				TimeoutUVD: config.CeremonyTimeout,
			},
		},
	})
	bridge := &Bridge{
		keys:     keys,
		platform: platform,
		config:   config,
		rpErr:    err,
		parser:   defaultCredentialParser{},
		clock:    time.Now,
		newID:    id.NewID,
	}
	if err == nil {
		bridge.rp = rp
	}
	return bridge
}

// Available reports whether the device exposes a verifying platform
// authenticator. It never prompts the user.
func (b *Bridge) Available(ctx context.Context) bool {
	if b == nil || b.rp == nil || b.rpErr != nil || b.platform == nil {
		return false
	}
	return b.platform.Available(ctx)
}

// Registered reports whether a usable credential is on file. A set flag with a
// missing or unreadable credential counts as unregistered.
func (b *Bridge) Registered(ctx context.Context) bool {
	if b == nil || b.keys == nil {
		return false
	}
	flag, err := b.keys.BiometricRegistered(ctx)
	if err != nil || !flag {
		return false
	}
	_, ok, err := b.loadRecord(ctx)
	return err == nil && ok
}

// Register creates the device credential for owner. It succeeds without
// prompting when a credential already exists. Any platform rejection leaves the
// registration flag as it was.
func (b *Bridge) Register(ctx context.Context, owner profile.Profile) error {
	if b == nil {
		return errors.New(errors.CodeBiometricUnavailable, "biometric bridge is not configured")
	}
	b.registerMu.Lock()
	defer b.registerMu.Unlock()

	if b.Registered(ctx) {
		return nil
	}
	if !b.Available(ctx) {
		return errors.New(errors.CodeBiometricUnavailable, "platform authenticator is not available")
	}

	handle, err := b.newID()
	if err != nil {
		return fmt.Errorf("create user handle: %w", err)
	}
	user := &guardUser{handle: handle, name: ownerName(owner), displayName: owner.DisplayName()}

	creation, session, err := b.rp.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementDiscouraged,
			UserVerification:        protocol.VerificationRequired,
		}),
	)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}

	response, err := b.run(ctx, CeremonyRegistration, creation, b.platform.Create)
	if err != nil {
		return err
	}

	parsed, err := b.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return errors.Wrap(errors.CodeBiometricFailed, "parse credential response", err)
	}
	credential, err := b.rp.CreateCredential(user, *session, parsed)
	if err != nil {
		return errors.Wrap(errors.CodeBiometricFailed, "validate credential response", err)
	}

	record := credentialRecord{UserHandle: handle, Credential: *credential, CreatedAt: b.clock().UTC()}
	if err := b.saveRecord(ctx, record); err != nil {
		return err
	}
	if err := b.keys.SetBiometricRegistered(ctx, true); err != nil {
		return fmt.Errorf("mark biometric registered: %w", err)
	}
	return nil
}

// Authenticate asks the platform for an assertion over the registered
// credential. A nil error means the owner was verified.
func (b *Bridge) Authenticate(ctx context.Context) error {
	if !b.Available(ctx) {
		return errors.New(errors.CodeBiometricUnavailable, "platform authenticator is not available")
	}
	record, ok, err := b.loadRecord(ctx)
	if err != nil || !ok {
		return errors.Wrap(errors.CodeBiometricUnavailable, "no biometric credential on file", err)
	}
	user := &guardUser{handle: record.UserHandle, credentials: []webauthn.Credential{record.Credential}}

	assertion, session, err := b.rp.BeginLogin(user, webauthn.WithUserVerification(protocol.VerificationRequired))
	if err != nil {
		return fmt.Errorf("begin login: %w", err)
	}

	response, err := b.run(ctx, CeremonyAuthentication, assertion, b.platform.Get)
	if err != nil {
		return err
	}

	parsed, err := b.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return errors.Wrap(errors.CodeBiometricFailed, "parse assertion response", err)
	}
	credential, err := b.rp.ValidateLogin(user, *session, parsed)
	if err != nil {
		return errors.Wrap(errors.CodeBiometricFailed, "validate assertion", err)
	}

	// A failed sign counter save does not undo the verified assertion.
	record.Credential = *credential
	if err := b.saveRecord(ctx, record); err != nil {
		log.Printf("biometric sign counter not saved: %v", err)
	}
	return nil
}

// run hands one ceremony to the platform under the configured deadline.
func (b *Bridge) run(ctx context.Context, kind CeremonyKind, options any, call func(context.Context, Ceremony) ([]byte, error)) ([]byte, error) {
	payload, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode %s options: %w", kind, err)
	}
	ceremonyID, err := b.newID()
	if err != nil {
		return nil, fmt.Errorf("create ceremony id: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.CeremonyTimeout)
	defer cancel()

	ceremony := Ceremony{
		ID:       ceremonyID,
		Kind:     kind,
		Options:  payload,
		Deadline: b.clock().UTC().Add(b.config.CeremonyTimeout),
	}
	response, err := call(ctx, ceremony)
	if err != nil {
		return nil, errors.Wrap(errors.CodeBiometricFailed, string(kind)+" ceremony failed", err)
	}
	return response, nil
}

func (b *Bridge) loadRecord(ctx context.Context) (credentialRecord, bool, error) {
	raw, ok, err := b.keys.BiometricCredential(ctx)
	if err != nil || !ok {
		return credentialRecord{}, false, err
	}
	var record credentialRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return credentialRecord{}, false, fmt.Errorf("decode biometric credential: %w", storage.ErrCorrupt)
	}
	if record.UserHandle == "" || len(record.Credential.ID) == 0 {
		return credentialRecord{}, false, fmt.Errorf("biometric credential incomplete: %w", storage.ErrCorrupt)
	}
	return record, true, nil
}

func (b *Bridge) saveRecord(ctx context.Context, record credentialRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode biometric credential: %w", err)
	}
	return b.keys.SetBiometricCredential(ctx, string(payload))
}

type guardUser struct {
	handle      string
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *guardUser) WebAuthnID() []byte {
	return []byte(u.handle)
}

func (u *guardUser) WebAuthnName() string {
	if u.name == "" {
		return u.handle
	}
	return u.name
}

func (u *guardUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.WebAuthnName()
	}
	return u.displayName
}

func (u *guardUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func ownerName(owner profile.Profile) string {
	if owner.Email != "" {
		return owner.Email
	}
	return owner.DisplayName()
}
