package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/itish2003/minirag/models"
)

// ErrUnsupportedFile is returned by LoadDocument for extensions it cannot read.
var ErrUnsupportedFile = errors.New("unsupported file type")

// SetPDFLicense registers the UniDoc metered key. PDF extraction fails
// without one, so a missing key is only logged.
func SetPDFLicense(key string) {
	if key == "" {
		logrus.Warn("EXTRACTOR: UNIDOC_LICENSE_KEY not set, PDF processing will fail")
		return
	}
	if err := license.SetMeteredKey(key); err != nil {
		logrus.WithError(err).Error("EXTRACTOR: failed to set UniDoc license key")
	}
}

// IsPDF reports whether name carries a .pdf extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// LoadDocument reads a file into pages. PDFs yield one page per PDF page;
// .txt and .md files yield a single page.
func LoadDocument(path string) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &models.Document{
			Source: path,
			Pages:  []models.Page{{Number: 1, Text: string(content)}},
		}, nil
	case ".pdf":
		return loadPDF(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
}

// loadPDF uses UniPDF to get the text of every page.
func loadPDF(path string) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	doc := &models.Document{Source: path, Pages: make([]models.Page, 0, numPages)}
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		doc.Pages = append(doc.Pages, models.Page{Number: i, Text: text})
	}

	logrus.WithFields(logrus.Fields{"path": path, "pages": numPages}).Info("EXTRACTOR: loaded PDF")
	return doc, nil
}
