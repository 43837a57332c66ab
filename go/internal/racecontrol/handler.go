package racecontrol

import (
	"net/http"

	"connectrpc.com/connect"
)

// NewHandler builds an HTTP handler for every race control procedure. It
// returns the path prefix to mount it on.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	listSessions := connect.NewUnaryHandler(ListSessionsProcedure, svc.ListSessions, opts...)
	getRaceData := connect.NewUnaryHandler(GetRaceDataProcedure, svc.GetRaceData, opts...)
	addSession := connect.NewUnaryHandler(AddSessionProcedure, svc.AddSession, opts...)
	deleteSession := connect.NewUnaryHandler(DeleteSessionProcedure, svc.DeleteSession, opts...)
	addDriver := connect.NewUnaryHandler(AddDriverProcedure, svc.AddDriver, opts...)
	editDriver := connect.NewUnaryHandler(EditDriverProcedure, svc.EditDriver, opts...)
	removeDriver := connect.NewUnaryHandler(RemoveDriverProcedure, svc.RemoveDriver, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ListSessionsProcedure:
			listSessions.ServeHTTP(w, r)
		case GetRaceDataProcedure:
			getRaceData.ServeHTTP(w, r)
		case AddSessionProcedure:
			addSession.ServeHTTP(w, r)
		case DeleteSessionProcedure:
			deleteSession.ServeHTTP(w, r)
		case AddDriverProcedure:
			addDriver.ServeHTTP(w, r)
		case EditDriverProcedure:
			editDriver.ServeHTTP(w, r)
		case RemoveDriverProcedure:
			removeDriver.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
