// Package apiconnect wires the settle.v1 services to Connect handlers and clients.
package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsettle/pkg/api"
)

const (
	// SettlementServiceName is the fully-qualified name of the SettlementService service.
	SettlementServiceName = "settle.v1.SettlementService"
)

const (
	SettlementServicePreviewSplitProcedure        = "/settle.v1.SettlementService/PreviewSplit"
	SettlementServiceComputeSettlementProcedure   = "/settle.v1.SettlementService/ComputeSettlement"
	SettlementServiceGetSettlementProcedure       = "/settle.v1.SettlementService/GetSettlement"
	SettlementServiceMarkTransferSettledProcedure = "/settle.v1.SettlementService/MarkTransferSettled"
)

// SettlementServiceHandler is implemented by the settlement server.
type SettlementServiceHandler interface {
	PreviewSplit(context.Context, *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error)
	ComputeSettlement(context.Context, *connect.Request[api.ComputeSettlementRequest]) (*connect.Response[api.ComputeSettlementResponse], error)
	GetSettlement(context.Context, *connect.Request[api.GetSettlementRequest]) (*connect.Response[api.GetSettlementResponse], error)
	MarkTransferSettled(context.Context, *connect.Request[api.MarkTransferSettledRequest]) (*connect.Response[api.MarkTransferSettledResponse], error)
}

// NewSettlementServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewSettlementServiceHandler(svc SettlementServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	previewSplit := connect.NewUnaryHandler(SettlementServicePreviewSplitProcedure, svc.PreviewSplit, opts...)
	computeSettlement := connect.NewUnaryHandler(SettlementServiceComputeSettlementProcedure, svc.ComputeSettlement, opts...)
	getSettlement := connect.NewUnaryHandler(SettlementServiceGetSettlementProcedure, svc.GetSettlement, opts...)
	markTransferSettled := connect.NewUnaryHandler(SettlementServiceMarkTransferSettledProcedure, svc.MarkTransferSettled, opts...)

	return "/" + SettlementServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SettlementServicePreviewSplitProcedure:
			previewSplit.ServeHTTP(w, r)
		case SettlementServiceComputeSettlementProcedure:
			computeSettlement.ServeHTTP(w, r)
		case SettlementServiceGetSettlementProcedure:
			getSettlement.ServeHTTP(w, r)
		case SettlementServiceMarkTransferSettledProcedure:
			markTransferSettled.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// SettlementServiceClient is a client for the settle.v1.SettlementService service.
type SettlementServiceClient interface {
	PreviewSplit(context.Context, *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error)
	ComputeSettlement(context.Context, *connect.Request[api.ComputeSettlementRequest]) (*connect.Response[api.ComputeSettlementResponse], error)
	GetSettlement(context.Context, *connect.Request[api.GetSettlementRequest]) (*connect.Response[api.GetSettlementResponse], error)
	MarkTransferSettled(context.Context, *connect.Request[api.MarkTransferSettledRequest]) (*connect.Response[api.MarkTransferSettledResponse], error)
}

// NewSettlementServiceClient constructs a client for the
// settle.v1.SettlementService service. The baseURL is the server root, e.g.
// http://localhost:8080.
func NewSettlementServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SettlementServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &settlementServiceClient{
		previewSplit: connect.NewClient[api.PreviewSplitRequest, api.PreviewSplitResponse](
			httpClient, baseURL+SettlementServicePreviewSplitProcedure, opts...),
		computeSettlement: connect.NewClient[api.ComputeSettlementRequest, api.ComputeSettlementResponse](
			httpClient, baseURL+SettlementServiceComputeSettlementProcedure, opts...),
		getSettlement: connect.NewClient[api.GetSettlementRequest, api.GetSettlementResponse](
			httpClient, baseURL+SettlementServiceGetSettlementProcedure, opts...),
		markTransferSettled: connect.NewClient[api.MarkTransferSettledRequest, api.MarkTransferSettledResponse](
			httpClient, baseURL+SettlementServiceMarkTransferSettledProcedure, opts...),
	}
}

type settlementServiceClient struct {
	previewSplit        *connect.Client[api.PreviewSplitRequest, api.PreviewSplitResponse]
	computeSettlement   *connect.Client[api.ComputeSettlementRequest, api.ComputeSettlementResponse]
	getSettlement       *connect.Client[api.GetSettlementRequest, api.GetSettlementResponse]
	markTransferSettled *connect.Client[api.MarkTransferSettledRequest, api.MarkTransferSettledResponse]
}

func (c *settlementServiceClient) PreviewSplit(ctx context.Context, req *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error) {
	return c.previewSplit.CallUnary(ctx, req)
}

func (c *settlementServiceClient) ComputeSettlement(ctx context.Context, req *connect.Request[api.ComputeSettlementRequest]) (*connect.Response[api.ComputeSettlementResponse], error) {
	return c.computeSettlement.CallUnary(ctx, req)
}

func (c *settlementServiceClient) GetSettlement(ctx context.Context, req *connect.Request[api.GetSettlementRequest]) (*connect.Response[api.GetSettlementResponse], error) {
	return c.getSettlement.CallUnary(ctx, req)
}

func (c *settlementServiceClient) MarkTransferSettled(ctx context.Context, req *connect.Request[api.MarkTransferSettledRequest]) (*connect.Response[api.MarkTransferSettledResponse], error) {
	return c.markTransferSettled.CallUnary(ctx, req)
}
