// Package html provides a Normaliser for HTML pages such as vendor blog posts
// and advisories. It drops scripts, styles and navigation chrome and keeps
// the readable text, including the contents of code blocks.
package html
