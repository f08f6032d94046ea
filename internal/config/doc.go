// Package config implements the sectioned configuration file format:
// [section "subsection"] blocks of "key = value" pairs, with shell-like
// quoting and backslash continuation. Reads parse the whole file;
// writes locate and replace only the matched key's or section's own
// byte span rather than rewriting the file wholesale.
package config
