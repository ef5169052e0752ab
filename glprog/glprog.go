// Package glprog links generated shader programs with OpenGL and uploads
// uniform values to them. Linking requires CGo; builds without it return errors.
package glprog
