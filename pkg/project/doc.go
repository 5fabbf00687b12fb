// Package project manages a changekeeper project on disk.
//
// A project is laid out as follows:
//
//	project-root/
//	├── changekeeper.yaml       # Store, changelog and ledger configuration
//	└── db/
//	    ├── changelog.yaml      # Ordered migration declarations
//	    ├── changelog.sum       # Optional fingerprints of the declared content
//	    └── migrations/
//	        ├── 0001_create_users.sql
//	        └── 0002_add_email_index.sql
//
// Initialize scaffolds this layout without touching files that already exist.
// NewMigration creates the next migration file and declares it in the
// changelog, and Rehash rewrites the sum file from the declared content.
package project
