// Package models contains GORM-specific persistence models that map to the
// system tables. These models are separate from domain entities to keep the
// domain layer pure and free from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: Common persistence fields and the SystemModels registry
// - import_history.go: Per-import lineage records
// - import_job.go: Async import job queue
// - upload_session.go: Multipart upload sessions
// - mapping_error.go: Per-row mapping rejections
// - query_thread.go: Analyzer conversation messages
//
// Dynamically created data tables are intentionally not modelled here; the
// table store manages their DDL and row access directly.
package models
