package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// ReportBucketConfigured reports whether report uploads are enabled.
func ReportBucketConfigured() bool {
	return strings.TrimSpace(os.Getenv("GCS_BUCKET")) != ""
}

// UploadReportToGCS stores an exported report and returns its object name.
func UploadReportToGCS(ctx context.Context, objectName string, content []byte) (string, error) {
	bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucketName == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	if len(content) == 0 {
		return "", errors.New("report is empty")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(uploadCtx)
	if strings.HasSuffix(objectName, ".xlsx") {
		wc.ContentType = xlsxContentType
	}
	if _, err := bytes.NewReader(content).WriteTo(wc); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to write report to gcs: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize report upload: %w", err)
	}
	return objectName, nil
}
