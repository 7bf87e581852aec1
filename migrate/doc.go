// Package migrate runs migration jobs. A job takes one package name through
// the whole pipeline:
//
//  1. fetch the source and target metadata documents concurrently
//  2. select the versions missing from the target
//  3. locate their tarballs
//  4. download and repack every tarball into the work directory
//  5. publish every archive to the target registry
//  6. remove the local archives and report the outcome
//
// Stages of one job are sequential. Jobs for different packages are
// independent and run concurrently; a failed job never stops its siblings.
// Every job ends in a Result, and callers decide the exit status from all of
// them.
package migrate
