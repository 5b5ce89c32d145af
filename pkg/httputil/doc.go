// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Errors are written through WriteAPIError, which maps an apperrors.Kind to
// its status code and writes {"error": "<message>"}:
//
//	if err := httputil.DecodeAndValidate(r, &req); err != nil {
//		httputil.WriteAPIError(w, err)
//		return
//	}
//
// Middleware is composed with Chain:
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//	)(router)
package httputil
