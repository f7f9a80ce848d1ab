package grpcapi

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/keys"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/registry/metacache"
	"xdao.co/tokenreg/txn"
)

// Client talks to a Registry gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client RegistryClient
	tokens *metacache.Cache

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the default dial options.
	Extra []grpc.DialOption

	// TokenCacheTTL enables the client-side token cache when non-zero.
	TokenCacheTTL time.Duration
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	c := NewClient(cc)
	if opts.TokenCacheTTL > 0 {
		c.EnableTokenCache(opts.TokenCacheTTL)
	}
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewRegistryClient(cc)}
}

// EnableTokenCache serves Token reads from a read-through cache whose
// entries live for ttl. Token instructions submitted through c drop the
// cached entry; writes by other clients show up once the entry expires.
func (c *Client) EnableTokenCache(ttl time.Duration) {
	c.tokens = metacache.New(remoteTokens{c}, ttl)
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Submit sends a signed envelope and returns the requester identity the
// server authenticated.
func (c *Client) Submit(ctx context.Context, env txn.Envelope) (address.Address, error) {
	raw, err := env.Marshal()
	if err != nil {
		return address.Zero, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Submit(ctx, wrapperspb.Bytes(raw))
	c.invalidate(env)
	if err != nil {
		return address.Zero, fromStatus(err)
	}
	return address.Parse(reply.GetValue())
}

// Execute signs ix with signer and submits it.
func (c *Client) Execute(ctx context.Context, signer keys.Signer, ix txn.Instruction) error {
	env, err := txn.Sign(signer, ix)
	if err != nil {
		return err
	}
	requester, err := c.Submit(ctx, env)
	if err != nil {
		return err
	}
	if requester != signer.Identity() {
		return fmt.Errorf("grpcapi: server authenticated %s, expected %s", requester, signer.Identity())
	}
	return nil
}

// Manager returns the manager record.
func (c *Client) Manager(ctx context.Context) (record.Manager, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetManager(ctx, &emptypb.Empty{})
	if err != nil {
		return record.Manager{}, fromStatus(err)
	}
	auth, err := address.Parse(reply.GetValue())
	if err != nil {
		return record.Manager{}, err
	}
	return record.Manager{Authority: auth}, nil
}

// Token returns the metadata record of token.
func (c *Client) Token(ctx context.Context, token address.Address) (record.Token, error) {
	if c.tokens != nil {
		return c.tokens.Token(ctx, token)
	}
	return c.fetchToken(ctx, token)
}

func (c *Client) fetchToken(ctx context.Context, token address.Address) (record.Token, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetToken(ctx, wrapperspb.String(token.String()))
	if err != nil {
		return record.Token{}, fromStatus(err)
	}
	tok, err := decodeToken(reply.GetValue())
	if err != nil {
		return record.Token{}, fmt.Errorf("grpcapi: decode token: %w", err)
	}
	if tok.Address != token {
		return record.Token{}, fmt.Errorf("grpcapi: server returned record for %s, asked for %s", tok.Address, token)
	}
	return tok, nil
}

// invalidate drops the cached record a token instruction in env may change.
func (c *Client) invalidate(env txn.Envelope) {
	if c.tokens == nil {
		return
	}
	ix, err := txn.UnmarshalInstruction(env.Payload)
	if err != nil {
		return
	}
	if ix.Kind == txn.KindRegister || ix.Kind == txn.KindUpdateToken {
		c.tokens.Invalidate(ix.Token)
	}
}

// remoteTokens is the uncached lookup behind a Client's token cache.
type remoteTokens struct{ c *Client }

func (r remoteTokens) Token(ctx context.Context, token address.Address) (record.Token, error) {
	return r.c.fetchToken(ctx, token)
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
