// Package console serves an orchestrator session over a JSON API, the
// surface the operator's browser or the clusterctl CLI talks to.
//
// Routes:
//
//	GET  /health                          liveness of the console itself
//	GET  /metrics                         Prometheus text
//	GET  /api/view                        latest reconciled ClusterView
//	POST /api/refresh                     poll now, return the new view
//	GET  /api/health                      health of the control endpoint
//	POST /api/nodes/:class/:id/:action    one start, stop or status
//	POST /api/batch/:class/:action        batch over a class
//	                                      ?onFailure=continue|abort  ?id=
//	GET  /api/inflight                    operations not yet settled
//	GET  /api/activity                    recent operations
//	GET  /api/data/:id                    storage detail of a data node
//
// Errors are JSON objects {"error": "..."} with the status chosen by the
// error class: 400 for an unknown class, action or node, 409 for an
// operation already in flight, 502 when the control endpoint failed or
// answered with a failure code.
package console
