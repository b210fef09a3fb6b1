package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsettle/pkg/api"
)

const (
	// TripServiceName is the fully-qualified name of the TripService service.
	TripServiceName = "settle.v1.TripService"
)

const (
	TripServiceCreateTripProcedure    = "/settle.v1.TripService/CreateTrip"
	TripServiceGetTripProcedure       = "/settle.v1.TripService/GetTrip"
	TripServiceAddExpenseProcedure    = "/settle.v1.TripService/AddExpense"
	TripServiceDeleteExpenseProcedure = "/settle.v1.TripService/DeleteExpense"
	TripServiceListExpensesProcedure  = "/settle.v1.TripService/ListExpenses"
)

// TripServiceHandler is implemented by the trip server.
type TripServiceHandler interface {
	CreateTrip(context.Context, *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error)
	GetTrip(context.Context, *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error)
	ListExpenses(context.Context, *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error)
}

// NewTripServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewTripServiceHandler(svc TripServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	createTrip := connect.NewUnaryHandler(TripServiceCreateTripProcedure, svc.CreateTrip, opts...)
	getTrip := connect.NewUnaryHandler(TripServiceGetTripProcedure, svc.GetTrip, opts...)
	addExpense := connect.NewUnaryHandler(TripServiceAddExpenseProcedure, svc.AddExpense, opts...)
	deleteExpense := connect.NewUnaryHandler(TripServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...)
	listExpenses := connect.NewUnaryHandler(TripServiceListExpensesProcedure, svc.ListExpenses, opts...)

	return "/" + TripServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TripServiceCreateTripProcedure:
			createTrip.ServeHTTP(w, r)
		case TripServiceGetTripProcedure:
			getTrip.ServeHTTP(w, r)
		case TripServiceAddExpenseProcedure:
			addExpense.ServeHTTP(w, r)
		case TripServiceDeleteExpenseProcedure:
			deleteExpense.ServeHTTP(w, r)
		case TripServiceListExpensesProcedure:
			listExpenses.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// TripServiceClient is a client for the settle.v1.TripService service.
type TripServiceClient interface {
	CreateTrip(context.Context, *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error)
	GetTrip(context.Context, *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error)
	ListExpenses(context.Context, *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error)
}

// NewTripServiceClient constructs a client for the settle.v1.TripService service.
func NewTripServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TripServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &tripServiceClient{
		createTrip: connect.NewClient[api.CreateTripRequest, api.CreateTripResponse](
			httpClient, baseURL+TripServiceCreateTripProcedure, opts...),
		getTrip: connect.NewClient[api.GetTripRequest, api.GetTripResponse](
			httpClient, baseURL+TripServiceGetTripProcedure, opts...),
		addExpense: connect.NewClient[api.AddExpenseRequest, api.AddExpenseResponse](
			httpClient, baseURL+TripServiceAddExpenseProcedure, opts...),
		deleteExpense: connect.NewClient[api.DeleteExpenseRequest, api.DeleteExpenseResponse](
			httpClient, baseURL+TripServiceDeleteExpenseProcedure, opts...),
		listExpenses: connect.NewClient[api.ListExpensesRequest, api.ListExpensesResponse](
			httpClient, baseURL+TripServiceListExpensesProcedure, opts...),
	}
}

type tripServiceClient struct {
	createTrip    *connect.Client[api.CreateTripRequest, api.CreateTripResponse]
	getTrip       *connect.Client[api.GetTripRequest, api.GetTripResponse]
	addExpense    *connect.Client[api.AddExpenseRequest, api.AddExpenseResponse]
	deleteExpense *connect.Client[api.DeleteExpenseRequest, api.DeleteExpenseResponse]
	listExpenses  *connect.Client[api.ListExpensesRequest, api.ListExpensesResponse]
}

func (c *tripServiceClient) CreateTrip(ctx context.Context, req *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	return c.createTrip.CallUnary(ctx, req)
}

func (c *tripServiceClient) GetTrip(ctx context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	return c.getTrip.CallUnary(ctx, req)
}

func (c *tripServiceClient) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error) {
	return c.addExpense.CallUnary(ctx, req)
}

func (c *tripServiceClient) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

func (c *tripServiceClient) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	return c.listExpenses.CallUnary(ctx, req)
}
