// Package postgres implements Pulse's persistence against PostgreSQL using
// database/sql and lib/pq. Repositories are thin: raw SQL, explicit scans,
// errors wrapped with context. Business rules live in the packages that
// consume them.
package postgres
