// Package mocks provides mock implementations of the core ports for tests.
//
// The gomock mocks are generated from internal/core. To regenerate after an
// interface change, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
package mocks

// Generates mocks for every port in internal/core:
// JobRepository, JobQueue, DocumentStore, ResultStore, TextExtractor, Generator, Analyzer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=core_mock.go github.com/PratikB30/crewai-financial-doc-analyzer/internal/core JobRepository,JobQueue,DocumentStore,ResultStore,TextExtractor,Generator,Analyzer
