// Package googleforms implements forms.Client over the Google Forms REST API.
//
// The client is thin: it converts between the service-neutral forms model and
// the API's request types, paces calls with a shared rate limiter and
// classifies every failure into the domain error taxonomy. It never retries;
// the task worker owns that decision.
package googleforms
