// Package rasterize converts PDF pages to PNG images for backend submission.
//
// Document validation and page counts come from pdfcpu; the actual raster
// rendering shells out to poppler's pdftoppm at a configured DPI. Rendered
// images live in a per-run temp directory and are removed after each
// transcription attempt.
package rasterize
