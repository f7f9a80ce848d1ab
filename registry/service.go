// Package registry maps token identifiers to descriptive metadata under a
// two-tier authority model: a registry-wide manager authority and each
// token's own mint authority.
package registry

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/internal/logging"
	"xdao.co/tokenreg/mint"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/txn"
)

// DefaultProgramID is the registry program id used when none is configured.
var DefaultProgramID = address.MustParse("4DHXD1JVCTYQnWVXpqG1HY9LbAocbsfQUbDqmK4qBB4o")

// MintOracle reports a token's current mint authority as seen by r. The
// registry passes its own transaction so the read and the write that follows
// share one snapshot.
type MintOracle interface {
	MintAuthority(ctx context.Context, r storage.Reader, token address.Address) (address.Address, error)
}

// Metadata is the caller-supplied part of a token record.
type Metadata struct {
	Name     string
	Symbol   string
	ImageURI string
}

// Service executes registry operations against a store. Each operation is
// one store update.
type Service struct {
	store   storage.Store
	program address.Address
	mints   MintOracle
	tracer  trace.Tracer
	manager address.Address
}

// Option configures a Service.
type Option func(*Service)

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New returns a Service for program. A zero program selects DefaultProgramID.
func New(store storage.Store, program address.Address, mints MintOracle, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry: nil store")
	}
	if mints == nil {
		return nil, errors.New("registry: nil mint oracle")
	}
	if program.IsZero() {
		program = DefaultProgramID
	}
	mgr, err := record.ManagerAddress(program)
	if err != nil {
		return nil, fmt.Errorf("registry: derive manager address: %w", err)
	}
	s := &Service{
		store:   store,
		program: program,
		mints:   mints,
		tracer:  otel.Tracer("xdao.co/tokenreg/registry"),
		manager: mgr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Program returns the registry program id.
func (s *Service) Program() address.Address { return s.program }

// ManagerAddress returns the manager singleton's location.
func (s *Service) ManagerAddress() address.Address { return s.manager }

// TokenAddress returns the record location for token.
func (s *Service) TokenAddress(token address.Address) (address.Address, error) {
	return record.TokenAddress(s.program, token)
}

// InitializeManager creates the manager record with requester as its
// authority. It succeeds exactly once per program.
func (s *Service) InitializeManager(ctx context.Context, requester address.Address) error {
	ctx, end := s.start(ctx, "InitializeManager", requester)
	err := s.initializeManager(ctx, requester)
	end(err)
	return err
}

func (s *Service) initializeManager(ctx context.Context, requester address.Address) error {
	if requester.IsZero() {
		return ErrInvalidAuthority
	}
	acct, err := record.Manager{Authority: requester}.Account(s.program)
	if err != nil {
		return internal("encode manager", err)
	}
	return s.update(ctx, func(tx storage.Tx) error {
		if err := tx.Create(ctx, s.manager, acct); err != nil {
			if storage.IsAlreadyExists(err) {
				return ErrAlreadyExists
			}
			return internal("create manager", err)
		}
		return nil
	})
}

// UpdateManager rotates the manager authority. Only the current authority
// may do so.
func (s *Service) UpdateManager(ctx context.Context, requester, newAuthority address.Address) error {
	ctx, end := s.start(ctx, "UpdateManager", requester)
	err := s.updateManager(ctx, requester, newAuthority)
	end(err)
	return err
}

func (s *Service) updateManager(ctx context.Context, requester, newAuthority address.Address) error {
	if newAuthority.IsZero() {
		return ErrInvalidAuthority
	}
	return s.update(ctx, func(tx storage.Tx) error {
		mgr, err := s.loadManager(ctx, tx)
		if err != nil {
			return err
		}
		if requester != mgr.Authority {
			return ErrUnauthorized
		}
		acct, err := record.Manager{Authority: newAuthority}.Account(s.program)
		if err != nil {
			return internal("encode manager", err)
		}
		if err := tx.Put(ctx, s.manager, acct); err != nil {
			return internal("write manager", err)
		}
		return nil
	})
}

// Register creates the metadata record for token. The requester must be the
// manager authority or the token's mint authority.
func (s *Service) Register(ctx context.Context, requester, token address.Address, md Metadata) error {
	ctx, end := s.start(ctx, "Register", requester, attribute.String("token", token.String()))
	err := s.register(ctx, requester, token, md)
	end(err)
	return err
}

func (s *Service) register(ctx context.Context, requester, token address.Address, md Metadata) error {
	return s.update(ctx, func(tx storage.Tx) error {
		if err := s.authorize(ctx, tx, requester, token, ErrInvalidRegisterRights); err != nil {
			return err
		}
		addr, acct, err := s.tokenAccount(token, md)
		if err != nil {
			return err
		}
		if err := tx.Create(ctx, addr, acct); err != nil {
			if storage.IsAlreadyExists(err) {
				return ErrAlreadyRegistered
			}
			return internal("create token record", err)
		}
		return nil
	})
}

// UpdateToken overwrites the name, symbol and image URI of a registered
// token. Authorization is the same as Register.
func (s *Service) UpdateToken(ctx context.Context, requester, token address.Address, md Metadata) error {
	ctx, end := s.start(ctx, "UpdateToken", requester, attribute.String("token", token.String()))
	err := s.updateToken(ctx, requester, token, md)
	end(err)
	return err
}

func (s *Service) updateToken(ctx context.Context, requester, token address.Address, md Metadata) error {
	return s.update(ctx, func(tx storage.Tx) error {
		if err := s.authorize(ctx, tx, requester, token, ErrInvalidEditRights); err != nil {
			return err
		}
		addr, acct, err := s.tokenAccount(token, md)
		if err != nil {
			return err
		}
		existing, err := tx.Get(ctx, addr)
		if err != nil {
			if storage.IsNotFound(err) {
				return ErrNotRegistered
			}
			return internal("read token record", err)
		}
		if _, err := record.DecodeToken(existing, s.program); err != nil {
			return internal("decode token record", err)
		}
		if err := tx.Put(ctx, addr, acct); err != nil {
			return internal("write token record", err)
		}
		return nil
	})
}

// Manager returns the manager record.
func (s *Service) Manager(ctx context.Context) (record.Manager, error) {
	return s.loadManager(ctx, s.store)
}

// Token returns the metadata record of token.
func (s *Service) Token(ctx context.Context, token address.Address) (record.Token, error) {
	addr, err := s.TokenAddress(token)
	if err != nil {
		return record.Token{}, internal("derive token address", err)
	}
	acct, err := s.store.Get(ctx, addr)
	if err != nil {
		if storage.IsNotFound(err) {
			return record.Token{}, ErrNotRegistered
		}
		return record.Token{}, internal("read token record", err)
	}
	tok, err := record.DecodeToken(acct, s.program)
	if err != nil {
		return record.Token{}, internal("decode token record", err)
	}
	return tok, nil
}

// Execute dispatches an authenticated instruction.
func (s *Service) Execute(ctx context.Context, requester address.Address, ix txn.Instruction) error {
	if ix.Program != s.program {
		return newError(CodeInvalidInstruction, "instruction addressed to another program", txn.ErrProgramMismatch)
	}
	md := Metadata{Name: ix.Name, Symbol: ix.Symbol, ImageURI: ix.ImageURI}
	switch ix.Kind {
	case txn.KindInitializeManager:
		return s.InitializeManager(ctx, requester)
	case txn.KindUpdateManager:
		return s.UpdateManager(ctx, requester, ix.NewAuthority)
	case txn.KindRegister:
		return s.Register(ctx, requester, ix.Token, md)
	case txn.KindUpdateToken:
		return s.UpdateToken(ctx, requester, ix.Token, md)
	default:
		return newError(CodeInvalidInstruction, "dispatch", fmt.Errorf("%w: %d", txn.ErrUnknownKind, ix.Kind))
	}
}

// Submit verifies a signed envelope and executes its instruction. Signature
// failures are returned as keys.ErrBadSignature; undecodable or misaddressed
// instructions as ErrInvalidInstruction.
func (s *Service) Submit(ctx context.Context, env txn.Envelope) (address.Address, txn.Instruction, error) {
	requester, ix, err := env.Open(s.program)
	if err != nil {
		if errors.Is(err, txn.ErrMalformed) || errors.Is(err, txn.ErrProgramMismatch) || errors.Is(err, txn.ErrUnknownKind) {
			return address.Zero, txn.Instruction{}, newError(CodeInvalidInstruction, "open envelope", err)
		}
		return address.Zero, txn.Instruction{}, err
	}
	return requester, ix, s.Execute(ctx, requester, ix)
}

// authorize loads the manager and the token's mint authority from tx and
// applies Authorize, returning denied when it refuses.
func (s *Service) authorize(ctx context.Context, tx storage.Reader, requester, token address.Address, denied *Error) error {
	mgr, err := s.loadManager(ctx, tx)
	if err != nil {
		return err
	}
	mintAuthority, err := s.mints.MintAuthority(ctx, tx, token)
	if err != nil {
		if errors.Is(err, mint.ErrNotMint) || errors.Is(err, mint.ErrNoAuthority) {
			return newError(CodeMintingAuthorityUnknown, fmt.Sprintf("token %s reports no mint authority", token), err)
		}
		return internal("read mint authority", err)
	}
	if !Authorize(requester, mgr.Authority, mintAuthority) {
		return denied
	}
	return nil
}

func (s *Service) loadManager(ctx context.Context, r storage.Reader) (record.Manager, error) {
	acct, err := r.Get(ctx, s.manager)
	if err != nil {
		if storage.IsNotFound(err) {
			return record.Manager{}, ErrManagerNotInitialized
		}
		return record.Manager{}, internal("read manager", err)
	}
	mgr, err := record.DecodeManager(acct, s.program)
	if err != nil {
		return record.Manager{}, internal("decode manager", err)
	}
	return mgr, nil
}

func (s *Service) tokenAccount(token address.Address, md Metadata) (address.Address, storage.Account, error) {
	if !utf8.ValidString(md.Name) || !utf8.ValidString(md.Symbol) || !utf8.ValidString(md.ImageURI) {
		return address.Zero, storage.Account{}, ErrInvalidMetadata
	}
	addr, err := s.TokenAddress(token)
	if err != nil {
		return address.Zero, storage.Account{}, internal("derive token address", err)
	}
	acct, err := record.Token{Address: token, Name: md.Name, Symbol: md.Symbol, ImageURI: md.ImageURI}.Account(s.program)
	if err != nil {
		if errors.Is(err, record.ErrInvalidText) {
			return address.Zero, storage.Account{}, newError(CodeInvalidMetadata, "token metadata must be valid UTF-8", err)
		}
		if errors.Is(err, record.ErrTooLarge) {
			return address.Zero, storage.Account{}, newError(CodeMetadataTooLarge, "token metadata exceeds record space", err)
		}
		return address.Zero, storage.Account{}, internal("encode token record", err)
	}
	return addr, acct, nil
}

// update runs fn in one store transaction. Registry errors pass through;
// anything else from the store is reported as internal.
func (s *Service) update(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := s.store.Update(ctx, fn)
	if err == nil {
		return nil
	}
	var regErr *Error
	if errors.As(err, &regErr) {
		return err
	}
	return internal("store update", err)
}

func (s *Service) start(ctx context.Context, op string, requester address.Address, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("requester", requester.String()))
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	logger := logr.FromContextOrDiscard(ctx).WithValues("op", op, "requester", requester.String())
	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			code := CodeOf(err)
			span.SetAttributes(attribute.String("registry.code", string(code)))
			span.SetStatus(codes.Error, err.Error())
			if code.Kind() == KindInternal {
				logger.Error(err, "Registry operation failed")
				return
			}
			logger.V(logging.VERBOSE).Info("Registry operation rejected", "code", code)
			return
		}
		logger.V(logging.VERBOSE).Info("Registry operation applied")
	}
}
