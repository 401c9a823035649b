package frontend

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cybergarage/go-sasl/sasl/gss"
	"github.com/cybergarage/go-sasl/sasl/scram"
	"github.com/jackc/pgx/v5/pgproto3"
)

// AuthState represents the current state of authentication.
type AuthState int

const (
	// AuthStateInit is the initial state before authentication begins.
	AuthStateInit AuthState = iota
	// AuthStateWaitingForPassword is waiting for a cleartext or MD5 password.
	AuthStateWaitingForPassword
	// AuthStateSASLInit is waiting for SASL initial response.
	AuthStateSASLInit
	// AuthStateSASL is waiting for SASL final response.
	AuthStateSASL
	// AuthStateComplete means authentication succeeded.
	AuthStateComplete
	// AuthStateFailed means authentication failed.
	AuthStateFailed
)

// AuthSession drives one client's authentication handshake over a
// pgproto3.Backend, independent of the steady-state proxy loop.
type AuthSession struct {
	backend *pgproto3.Backend

	// State is the current authentication state.
	State AuthState

	// Method is the authentication method being used.
	Method AuthMethod

	// Credentials holds the expected credentials for verification.
	Credentials UserSecretData

	// TLSState holds the TLS connection state for channel binding.
	// This should be set when using SCRAM-SHA-256-PLUS.
	TLSState *tls.ConnectionState

	// MD5Salt is the salt used for MD5 authentication.
	MD5Salt [4]byte

	scramServer        *scram.Server
	serverFirstMessage string
	serverFinalMessage *scram.Message
	channelBindingData []byte
	channelBindingType ChannelBindingType
	clientGs2Header    *gss.Header

	// Error holds any authentication error.
	Error error
}

// NewAuthSession creates a new AuthSession for the given credentials and
// drives it over backend, sending messages directly to the client.
func NewAuthSession(backend *pgproto3.Backend, creds UserSecretData, method AuthMethod, tlsState *tls.ConnectionState) (*AuthSession, error) {
	session := &AuthSession{
		backend:     backend,
		State:       AuthStateInit,
		Method:      method,
		Credentials: creds,
	}

	if method == AuthMethodMD5 {
		salt := make([]byte, 4)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate MD5 salt: %w", err)
		}
		copy(session.MD5Salt[:], salt)
	}

	if err := session.setTLSState(tlsState); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *AuthSession) setTLSState(state *tls.ConnectionState) error {
	s.TLSState = state
	if state != nil && (s.Method == AuthMethodSCRAMSHA256Plus || s.Method == AuthMethodSCRAMSHA256) {
		data, cbType, err := getChannelBindingData(state)
		if err != nil {
			return fmt.Errorf("failed to get channel binding data: %w", err)
		}
		s.channelBindingData = data
		s.channelBindingType = cbType
	}
	return nil
}

// Run drives the handshake to completion, sending every message the
// method requires and reading the client's replies, returning an error
// if authentication fails or the client sends something unexpected.
func (s *AuthSession) Run() error {
	if err := s.sendAuthRequest(); err != nil {
		return err
	}

	switch s.Method {
	case AuthMethodPlain, AuthMethodMD5:
		msg, err := s.backend.Receive()
		if err != nil {
			return fmt.Errorf("failed to read password message: %w", err)
		}
		pw, ok := msg.(*pgproto3.PasswordMessage)
		if !ok {
			return fmt.Errorf("expected PasswordMessage, got %T", msg)
		}
		if err := s.handlePasswordMessage(pw); err != nil {
			return err
		}

	case AuthMethodSCRAMSHA256, AuthMethodSCRAMSHA256Plus:
		msg, err := s.backend.Receive()
		if err != nil {
			return fmt.Errorf("failed to read SASL initial response: %w", err)
		}
		initial, ok := msg.(*pgproto3.SASLInitialResponse)
		if !ok {
			return fmt.Errorf("expected SASLInitialResponse, got %T", msg)
		}
		if err := s.handleSASLInitialResponse(initial); err != nil {
			return err
		}

		s.backend.Send(&pgproto3.AuthenticationSASLContinue{Data: []byte(s.serverFirstMessage)})
		if err := s.backend.Flush(); err != nil {
			return fmt.Errorf("failed to flush SASL continue: %w", err)
		}

		msg, err = s.backend.Receive()
		if err != nil {
			return fmt.Errorf("failed to read SASL response: %w", err)
		}
		final, ok := msg.(*pgproto3.SASLResponse)
		if !ok {
			return fmt.Errorf("expected SASLResponse, got %T", msg)
		}
		if err := s.handleSASLResponse(final); err != nil {
			return err
		}

		s.backend.Send(&pgproto3.AuthenticationSASLFinal{Data: []byte(s.serverFinalMessage.String())})
		if err := s.backend.Flush(); err != nil {
			return fmt.Errorf("failed to flush SASL final: %w", err)
		}

	default:
		return fmt.Errorf("unsupported auth method: %s", s.Method)
	}

	s.backend.Send(&pgproto3.AuthenticationOk{})
	if err := s.backend.Flush(); err != nil {
		return fmt.Errorf("failed to flush AuthenticationOk: %w", err)
	}
	return nil
}

func (s *AuthSession) sendAuthRequest() error {
	switch s.Method {
	case AuthMethodPlain:
		s.State = AuthStateWaitingForPassword
		s.backend.Send(&pgproto3.AuthenticationCleartextPassword{})

	case AuthMethodMD5:
		s.State = AuthStateWaitingForPassword
		s.backend.Send(&pgproto3.AuthenticationMD5Password{Salt: s.MD5Salt})

	case AuthMethodSCRAMSHA256:
		s.State = AuthStateSASLInit
		s.backend.Send(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{scramSASLMechanismSHA256}})

	case AuthMethodSCRAMSHA256Plus:
		s.State = AuthStateSASLInit
		mechanisms := []string{scramSASLMechanismSHA256Plus}
		if s.TLSState == nil {
			mechanisms = []string{scramSASLMechanismSHA256}
		}
		s.backend.Send(&pgproto3.AuthenticationSASL{AuthMechanisms: mechanisms})

	default:
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("unsupported auth method: %s", s.Method)
		return s.Error
	}
	return s.backend.Flush()
}

func (s *AuthSession) handlePasswordMessage(msg *pgproto3.PasswordMessage) error {
	if s.State != AuthStateWaitingForPassword {
		s.State = AuthStateFailed
		s.Error = errors.New("unexpected password message")
		return s.Error
	}

	var valid bool
	switch s.Method {
	case AuthMethodPlain:
		valid = msg.Password == s.Credentials.Password()
	case AuthMethodMD5:
		valid = msg.Password == computeMD5Password(s.Credentials, s.MD5Salt)
	default:
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("password message not valid for auth method: %s", s.Method)
		return s.Error
	}

	if !valid {
		s.State = AuthStateFailed
		s.Error = errors.New("password authentication failed")
		return s.Error
	}
	s.State = AuthStateComplete
	return nil
}

func (s *AuthSession) initSCRAMServer(mechanism string) error {
	credStore := newCredentialStore(s.Credentials)
	server, err := scram.NewServer(
		scram.WithServerCredentialStore(credStore),
		scram.WithServerHashFunc(scram.HashSHA256()),
		scram.WithServerIterationCount(4096),
	)
	if err != nil {
		return fmt.Errorf("failed to create SCRAM server: %w", err)
	}
	s.scramServer = server
	return nil
}

func (s *AuthSession) handleSASLInitialResponse(msg *pgproto3.SASLInitialResponse) error {
	if s.State != AuthStateSASLInit {
		s.State = AuthStateFailed
		s.Error = errors.New("unexpected SASL initial response")
		return s.Error
	}

	mechanism := msg.AuthMechanism
	if mechanism != scramSASLMechanismSHA256 && mechanism != scramSASLMechanismSHA256Plus {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("unsupported SASL mechanism: %s", mechanism)
		return s.Error
	}
	if mechanism == scramSASLMechanismSHA256Plus && s.TLSState == nil {
		s.State = AuthStateFailed
		s.Error = errors.New("channel binding requested but no TLS connection")
		return s.Error
	}

	if err := s.initSCRAMServer(mechanism); err != nil {
		s.State = AuthStateFailed
		s.Error = err
		return s.Error
	}

	parsedMsg, err := scram.NewMessageFromStringWithHeader(string(msg.Data))
	if err != nil {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("failed to parse client-first-message: %w", err)
		return s.Error
	}
	s.clientGs2Header = parsedMsg.Header

	username, hasUsername := parsedMsg.Username()
	if !hasUsername {
		s.State = AuthStateFailed
		s.Error = errors.New("client-first-message missing username")
		return s.Error
	}
	if username != s.Credentials.Username() {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("SCRAM username mismatch: expected %q, got %q", s.Credentials.Username(), username)
		return s.Error
	}

	if parsedMsg.HasHeader() {
		cbFlag := parsedMsg.CBFlag()
		if mechanism == scramSASLMechanismSHA256Plus {
			if cbFlag != gss.ClientSupportsUsedCBSFlag {
				s.State = AuthStateFailed
				s.Error = fmt.Errorf("SCRAM-SHA-256-PLUS requires channel binding, got flag: %c", cbFlag)
				return s.Error
			}
		} else if cbFlag == gss.ClientSupportsUsedCBSFlag {
			s.State = AuthStateFailed
			s.Error = errors.New("client requests channel binding but mechanism is not PLUS")
			return s.Error
		}
	}

	serverResp, err := s.scramServer.FirstMessageFrom(parsedMsg)
	if err != nil {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("failed to process client-first-message: %w", err)
		return s.Error
	}

	s.serverFirstMessage = serverResp.String()
	s.State = AuthStateSASL
	return nil
}

func (s *AuthSession) handleSASLResponse(msg *pgproto3.SASLResponse) error {
	if s.State != AuthStateSASL {
		s.State = AuthStateFailed
		s.Error = errors.New("unexpected SASL response")
		return s.Error
	}

	clientFinalMsg, err := scram.NewMessageFromString(string(msg.Data))
	if err != nil {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("failed to parse client-final-message: %w", err)
		return s.Error
	}

	if err := s.verifyChannelBinding(clientFinalMsg); err != nil {
		s.State = AuthStateFailed
		s.Error = err
		return s.Error
	}

	serverFinalMsg, err := s.scramServer.FinalMessageFrom(clientFinalMsg)
	if err != nil {
		s.State = AuthStateFailed
		s.Error = fmt.Errorf("SCRAM authentication failed: %w", err)
		return s.Error
	}

	s.serverFinalMessage = serverFinalMsg
	s.State = AuthStateComplete
	return nil
}

func (s *AuthSession) verifyChannelBinding(clientFinalMsg *scram.Message) error {
	cbData, hasCB := clientFinalMsg.ChannelBindingData()
	if !hasCB {
		return errors.New("client-final-message missing channel binding data")
	}

	clientCBBytes, err := base64.StdEncoding.DecodeString(cbData)
	if err != nil {
		return fmt.Errorf("invalid channel binding data encoding: %w", err)
	}

	var expectedCB []byte
	if s.clientGs2Header != nil {
		cbFlag := s.clientGs2Header.CBFlag()
		switch cbFlag {
		case gss.ClientSupportsUsedCBSFlag:
			if s.channelBindingData == nil {
				return errors.New("channel binding requested but no TLS data available")
			}
			expectedCB = append([]byte(s.clientGs2Header.String()), s.channelBindingData...)
		case gss.ClientDoesNotSupportCBSFlag, gss.ClientSupportsCBSFlag:
			expectedCB = []byte(s.clientGs2Header.String())
		default:
			return fmt.Errorf("invalid channel binding flag: %c", cbFlag)
		}
	} else {
		expectedCB = []byte("n,,")
	}

	if !constantTimeCompare(clientCBBytes, expectedCB) {
		return errors.New("channel binding verification failed")
	}
	return nil
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := range a {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

// IsComplete returns true if authentication is complete and successful.
func (s *AuthSession) IsComplete() bool {
	return s.State == AuthStateComplete
}

func (s *AuthSession) errorResponse() *pgproto3.ErrorResponse {
	errMsg := "authentication failed"
	if s.Error != nil {
		errMsg = s.Error.Error()
	}
	return &pgproto3.ErrorResponse{
		Severity: "FATAL",
		Code:     "28P01", // invalid_password
		Message:  errMsg,
	}
}

// SendError writes an authentication error response to the client.
func (s *AuthSession) SendError() error {
	s.backend.Send(s.errorResponse())
	return s.backend.Flush()
}
