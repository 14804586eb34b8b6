// Package mocks provides shared test doubles for the store interfaces and
// the JWT service.
//
// Each mock exposes a function field per method; when the field is nil the
// mock falls back to simple in-memory behavior or to its default values:
//
//	jwt := &mocks.MockJWTService{
//	    Claims: &auth.Claims{Agent: "planner", TokenType: auth.TokenTypeProducer},
//	}
//
// When adding a mock, name the file after the interface it implements.
package mocks
