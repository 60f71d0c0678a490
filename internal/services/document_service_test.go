package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyLayout(t *testing.T) {
	s := &DocumentService{bucket: "test-bucket"}

	key := s.objectKey("user-1", "doc-1", "my report.pdf")
	assert.Equal(t, "users/user-1/documents/doc-1/my_report.pdf", key)
}

func TestKeyFromStorageURL(t *testing.T) {
	key, err := keyFromStorageURL("https://test-bucket.s3.us-east-2.amazonaws.com/users/u1/documents/d1/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/documents/d1/notes.txt", key)

	_, err = keyFromStorageURL("https://test-bucket.s3.us-east-2.amazonaws.com/")
	assert.Error(t, err)

	_, err = keyFromStorageURL("://not a url")
	assert.Error(t, err)
}
