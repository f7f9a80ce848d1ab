package grpcapi

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/keys"
	"xdao.co/tokenreg/mint"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/storage/memory"
	"xdao.co/tokenreg/txn"
)

type harness struct {
	svc    *registry.Service
	mints  mint.Program
	store  *memory.Store
	cc     *grpc.ClientConn
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	mints := mint.NewProgram(address.Zero)
	svc, err := registry.New(store, address.Zero, mints)
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	srv, _ := NewGRPCServer(svc, logr.Discard())
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	client := NewClient(cc)
	client.Timeout = 5 * time.Second
	return &harness{svc: svc, mints: mints, store: store, cc: cc, client: client}
}

func signer(t *testing.T, b byte) keys.Signer {
	t.Helper()
	s, err := keys.NewEd25519Signer(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return s
}

func TestRegistryOverGRPC(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := signer(t, 1)
	m := signer(t, 2)
	x := signer(t, 3)
	token := address.Address{0x42}
	mAuth := m.Identity()
	require.NoError(t, h.mints.CreateMint(ctx, h.store, token, mint.Mint{MintAuthority: &mAuth}))

	program := h.svc.Program()
	require.NoError(t, h.client.Execute(ctx, a, txn.Instruction{Kind: txn.KindInitializeManager, Program: program}))

	err := h.client.Execute(ctx, x, txn.Instruction{Kind: txn.KindInitializeManager, Program: program})
	require.ErrorIs(t, err, registry.ErrAlreadyExists)

	mgr, err := h.client.Manager(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.Identity(), mgr.Authority)

	require.NoError(t, h.client.Execute(ctx, m, txn.Instruction{Kind: txn.KindRegister, Program: program, Token: token, Name: "Coin", Symbol: "CN", ImageURI: "uri1"}))
	require.NoError(t, h.client.Execute(ctx, a, txn.Instruction{Kind: txn.KindUpdateToken, Program: program, Token: token, Name: "Coin2", Symbol: "CN2", ImageURI: "uri2"}))

	err = h.client.Execute(ctx, x, txn.Instruction{Kind: txn.KindUpdateToken, Program: program, Token: token, Name: "Evil"})
	require.ErrorIs(t, err, registry.ErrInvalidEditRights)
	assert.True(t, registry.IsKind(err, registry.KindAuthorization))

	got, err := h.client.Token(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, record.Token{Address: token, Name: "Coin2", Symbol: "CN2", ImageURI: "uri2"}, got)

	_, err = h.client.Token(ctx, address.Address{0x43})
	require.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestSubmitRejectsBadEnvelopes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	raw := NewRegistryClient(h.cc)

	_, err := raw.Submit(ctx, wrapperspb.Bytes([]byte{0xFF}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	env, err := txn.Sign(signer(t, 1), txn.Instruction{Kind: txn.KindInitializeManager, Program: h.svc.Program()})
	require.NoError(t, err)
	env.Signature[0] ^= 0xFF
	_, err = h.client.Submit(ctx, env)
	require.ErrorIs(t, err, keys.ErrBadSignature)

	env, err = txn.Sign(signer(t, 1), txn.Instruction{Kind: txn.KindInitializeManager, Program: address.Address{9}})
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)
	_, err = raw.Submit(ctx, wrapperspb.Bytes(b))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = h.client.Submit(ctx, env)
	require.ErrorIs(t, err, registry.ErrInvalidInstruction)
}

func TestSubmitUndecodablePayloadIsInvalidArgument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	raw := NewRegistryClient(h.cc)

	// Correctly signed, but the name is not valid UTF-8 so the payload cannot
	// be decoded on the server.
	env, err := txn.Sign(signer(t, 1), txn.Instruction{Kind: txn.KindRegister, Program: h.svc.Program(), Token: address.Address{0x42}, Name: "Coin\xff"})
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)

	_, err = raw.Submit(ctx, wrapperspb.Bytes(b))
	st := status.Convert(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if i, ok := d.(*errdetails.ErrorInfo); ok {
			info = i
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, string(registry.CodeInvalidInstruction), info.GetReason())
	assert.Equal(t, "6011", info.GetMetadata()["number"])

	_, err = h.client.Submit(ctx, env)
	require.ErrorIs(t, err, registry.ErrInvalidInstruction)
}

func TestClientTokenCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.EnableTokenCache(time.Minute)
	a := signer(t, 1)
	token := address.Address{0x42}
	aAuth := a.Identity()
	require.NoError(t, h.mints.CreateMint(ctx, h.store, token, mint.Mint{MintAuthority: &aAuth}))

	program := h.svc.Program()
	require.NoError(t, h.client.Execute(ctx, a, txn.Instruction{Kind: txn.KindInitializeManager, Program: program}))
	require.NoError(t, h.client.Execute(ctx, a, txn.Instruction{Kind: txn.KindRegister, Program: program, Token: token, Name: "Coin", Symbol: "CN", ImageURI: "uri1"}))

	got, err := h.client.Token(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Coin", got.Name)

	// A write that bypasses this client is not seen until the entry expires.
	require.NoError(t, h.svc.UpdateToken(ctx, aAuth, token, registry.Metadata{Name: "Direct", Symbol: "D", ImageURI: "d"}))
	got, err = h.client.Token(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Coin", got.Name)

	// Updates submitted through the client drop the cached entry.
	require.NoError(t, h.client.Execute(ctx, a, txn.Instruction{Kind: txn.KindUpdateToken, Program: program, Token: token, Name: "Coin2", Symbol: "CN2", ImageURI: "uri2"}))
	got, err = h.client.Token(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, record.Token{Address: token, Name: "Coin2", Symbol: "CN2", ImageURI: "uri2"}, got)

	// Misses are not cached.
	_, err = h.client.Token(ctx, address.Address{0x43})
	require.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestErrorInfoAndRequestID(t *testing.T) {
	h := newHarness(t)
	raw := NewRegistryClient(h.cc)

	const id = "0b6c8f4e-3b1e-4c55-9d43-8f2b7c9a1e20"
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, id)
	var header metadata.MD
	_, err := raw.GetToken(ctx, wrapperspb.String(address.Address{1}.String()), grpc.Header(&header))
	require.Error(t, err)
	assert.Equal(t, []string{id}, header.Get(RequestIDHeader))

	st := status.Convert(err)
	assert.Equal(t, codes.NotFound, st.Code())
	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if i, ok := d.(*errdetails.ErrorInfo); ok {
			info = i
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, string(registry.CodeNotRegistered), info.GetReason())
	assert.Equal(t, registry.Domain, info.GetDomain())
	assert.Equal(t, "6006", info.GetMetadata()["number"])
	assert.Equal(t, id, info.GetMetadata()["request_id"])
}

func TestHealthService(t *testing.T) {
	h := newHarness(t)
	resp, err := healthpb.NewHealthClient(h.cc).Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
