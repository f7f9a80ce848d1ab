package grpcapi

import (
	"errors"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/tokenreg/keys"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/txn"
)

// toStatus converts err to a gRPC status carrying an ErrorInfo whose Reason
// is the registry code.
func toStatus(err error, requestID string) error {
	if err == nil {
		return nil
	}
	code := registry.CodeOf(err)
	grpcCode := code.GRPCCode()
	switch {
	case errors.Is(err, keys.ErrBadSignature):
		grpcCode = codes.Unauthenticated
	case errors.Is(err, txn.ErrMalformed), errors.Is(err, txn.ErrProgramMismatch), errors.Is(err, txn.ErrUnknownKind):
		grpcCode = codes.InvalidArgument
	}

	st := status.New(grpcCode, err.Error())
	if code == registry.CodeInternal && grpcCode != codes.Internal {
		return st.Err()
	}
	meta := map[string]string{"number": strconv.FormatUint(uint64(code.Number()), 10)}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	withDetails, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(code),
		Domain:   registry.Domain,
		Metadata: meta,
	})
	if derr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// fromStatus recovers a registry error from an RPC failure.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.Unauthenticated {
		return keys.ErrBadSignature
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != registry.Domain {
			continue
		}
		return &registry.Error{Code: registry.Code(info.GetReason()), Message: st.Message(), Cause: err}
	}
	return err
}
