// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package router classifies decrypted wallet requests, validates their shape
// and dispatches each valid request to exactly one chain operation.
//
// A request moves through the states received, validated, dispatched and
// completed, or ends early as rejected. The router performs no I/O itself.
package router

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/nostrbridge/chain"
	"github.com/btcsuite/nostrbridge/protocol"
)

// ChainClient is the set of chain operations the router dispatches to. It is
// satisfied by *chain.Client.
type ChainClient interface {
	Lookup(ctx context.Context, query string) (*protocol.LookupData, error)
	BroadcastTx(ctx context.Context, txHex string) (*chainhash.Hash, error)
	FeeEstimates(ctx context.Context) protocol.FeeTiers
	Utxos(ctx context.Context, addresses []string) []protocol.UtxoInfo
}

// A compile-time check to ensure *chain.Client satisfies ChainClient.
var _ ChainClient = (*chain.Client)(nil)

// Request results reported to the Recorder.
const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultMalformed = "malformed"
)

// Recorder counts dispatched requests. It is implemented by the metrics
// package.
type Recorder interface {
	Request(reqType, result string)
}

type noopRecorder struct{}

func (noopRecorder) Request(string, string) {}

// Router turns payloads into responses.
type Router struct {
	client   ChainClient
	recorder Recorder
}

// New creates a Router dispatching to client. recorder may be nil.
func New(client ChainClient, recorder Recorder) *Router {
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Router{client: client, recorder: recorder}
}

// dispatchOptions holds the optional arguments of Dispatch.
type dispatchOptions struct {
	fallbackReqID string
}

// DispatchOption modifies a single Dispatch call.
type DispatchOption func(*dispatchOptions)

// WithFallbackReqID supplies the request id to use when the payload has
// none, such as the value of the carrying event's req tag.
func WithFallbackReqID(reqID string) DispatchOption {
	return func(o *dispatchOptions) {
		o.fallbackReqID = reqID
	}
}

// Dispatch validates payload and runs the matching chain operation on behalf
// of sender. It returns ErrUnrecognizedRequest, with a nil response, for
// payloads that cannot be classified. Every other payload produces exactly
// one response carrying its req_id.
func (r *Router) Dispatch(ctx context.Context, payload []byte, sender string,
	opts ...DispatchOption) (protocol.Response, error) {

	var options dispatchOptions
	for _, opt := range opts {
		opt(&options)
	}

	log.Tracef("Received %d byte request from %s", len(payload), sender)

	req, err := Parse(payload, options.fallbackReqID)

	var malformed *MalformedError
	switch {
	case errors.As(err, &malformed):
		log.Debugf("Rejected request %q from %s: %v", malformed.ReqID,
			sender, malformed)
		r.recorder.Request(protocol.TypeError, ResultMalformed)

		return protocol.NewMalformed(malformed.ReqID, malformed.Reason),
			nil

	case err != nil:
		log.Debugf("Dropped unrecognized request from %s", sender)

		return nil, err
	}

	log.Debugf("Validated %s request %s from %s", req.Type(), req.ReqID(),
		sender)

	resp, ok := r.dispatch(ctx, req)

	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	r.recorder.Request(req.Type(), result)

	log.Debugf("Completed %s request %s (%s)", req.Type(), req.ReqID(),
		result)

	return resp, nil
}

// dispatch runs the chain operation for a validated request. ok is false if
// the response reports a failure.
func (r *Router) dispatch(ctx context.Context,
	req protocol.Request) (protocol.Response, bool) {

	log.Tracef("Dispatched %s request %s", req.Type(), req.ReqID())

	switch req := req.(type) {
	case *protocol.Lookup:
		data, err := r.client.Lookup(ctx, req.Query)
		if err != nil {
			log.Infof("Lookup %s failed: %v", req.ID, err)

			if req.Legacy {
				return &protocol.LegacyLookupResult{
					ID:  req.ID,
					Err: chain.Summarize(err),
				}, false
			}

			return &protocol.LookupResult{
				ID:  req.ID,
				Err: chain.Summarize(err),
			}, false
		}

		if req.Legacy {
			return &protocol.LegacyLookupResult{
				ID:   req.ID,
				Data: data,
			}, true
		}

		return &protocol.LookupResult{ID: req.ID, Data: data}, true

	case *protocol.BroadcastTx:
		txid, err := r.client.BroadcastTx(ctx, req.TxHex)
		if err != nil {
			log.Infof("Broadcast %s failed: %v", req.ID, err)

			return protocol.NewBroadcastFailure(
				req.ID, chain.Summarize(err),
			), false
		}

		log.Infof("Broadcast %s accepted: %v", req.ID, txid)

		return protocol.NewBroadcastSuccess(req.ID, txid.String()), true

	case *protocol.GetFees:
		return &protocol.FeeEstimate{
			ID:       req.ID,
			FeeTiers: r.client.FeeEstimates(ctx),
		}, true

	case *protocol.GetUtxos:
		return &protocol.UtxoList{
			ID:    req.ID,
			Utxos: r.client.Utxos(ctx, req.Addresses),
		}, true

	default:
		// Parse only yields the types above.
		log.Errorf("Unhandled request type %T", req)

		return protocol.NewMalformed(req.ReqID(), "unsupported request"),
			false
	}
}
