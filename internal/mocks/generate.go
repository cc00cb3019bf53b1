// Package mocks provides gomock doubles for the ports interfaces.
//
// Hand-written in-memory fakes live in internal/mocks/auth; these generated mocks are for
// tests that assert on exact calls. To regenerate after an interface change, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	src := mocks.NewMockRoleSource(ctrl)
//	src.EXPECT().FetchRole(gomock.Any(), "a@x.com").Return(auth.RoleMember, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/target/towertrack-portal/internal/ports IdentityProvider
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/towertrack-portal/internal/ports SessionStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_source_mock.go github.com/target/towertrack-portal/internal/ports RoleSource
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_cache_mock.go github.com/target/towertrack-portal/internal/ports RoleCache

// SessionBackend and ProfileDirectory are what the portal calls around sign-in.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_backend_mock.go github.com/target/towertrack-portal/internal/ports SessionBackend
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_directory_mock.go github.com/target/towertrack-portal/internal/ports ProfileDirectory

// Generate mock for ResidentAPI, the privileged dashboard calls:
// Announcements, PostAnnouncement, PaymentsFor, Coupons, PendingAgreements, AcceptAgreement, AdminSummary
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=resident_api_mock.go github.com/target/towertrack-portal/internal/ports ResidentAPI
